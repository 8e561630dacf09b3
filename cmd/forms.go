package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/permit-cli/internal/forms"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/ocr"
)

var (
	formsFile string
	formsRaw  bool
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Inspect permit application forms",
}

var formsFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the fields of a local HTML, PDF or scanned form",
	Long: `Extracts the fields of a form saved on disk. By default the oracle
enhances them with types, validation rules and help text; --raw prints only
what the document itself declares and needs no oracle.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		parser, err := formsParser(ctx)
		if err != nil {
			return err
		}
		fields, err := parseFormFile(ctx, parser, formsFile)
		if err != nil {
			return err
		}
		return printJSON(fields)
	},
}

func formsParser(ctx context.Context) (*forms.Parser, error) {
	if formsRaw {
		text, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return nil, eris.Wrap(err, "init ocr")
		}
		p := forms.NewParser(nil, text)
		p.Enhancer = nil
		return p, nil
	}
	if err := cfg.Validate("fill"); err != nil {
		return nil, err
	}
	_, parser, err := initOracle(ctx, metrics.New())
	return parser, err
}

// parseFormFile reads path, detects its kind from the extension and magic
// bytes, and parses it.
func parseFormFile(ctx context.Context, p *forms.Parser, path string) ([]model.FormField, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read form")
	}
	contentType := ocr.DetectMIME(content, mimeByExt(path))
	kind, err := forms.DetectKind(contentType, content)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, &forms.RawForm{
		URL:         "file://" + path,
		Kind:        kind,
		Content:     content,
		ContentType: contentType,
	})
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm":
		return "text/html"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return ""
}

func init() {
	formsFieldsCmd.Flags().StringVar(&formsFile, "file", "", "path to the form (required)")
	formsFieldsCmd.Flags().BoolVar(&formsRaw, "raw", false, "skip oracle enhancement")
	_ = formsFieldsCmd.MarkFlagRequired("file")
	formsCmd.AddCommand(formsFieldsCmd)
	rootCmd.AddCommand(formsCmd)
}
