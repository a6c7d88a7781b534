package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"
	"github.com/tidwall/gjson"
)

// Block is one unit of extracted text. Page is 1-based; zero means the
// extractor could not attribute the block to a page.
type Block struct {
	Text string
	Page int
}

// Extractor pulls ordered text blocks out of a PDF on disk.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) ([]Block, error)
}

// PDFExtractor reads the text layer page by page. It performs no OCR, so
// scanned documents yield no text.
type PDFExtractor struct{}

func (PDFExtractor) Name() string { return "text_layer" }

func (PDFExtractor) Extract(ctx context.Context, path string) (blocks []Block, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	blocks = make([]Block, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		text = normalizePlainText(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, Block{Text: text, Page: i})
	}
	return blocks, nil
}

// UnstructuredExtractor sends the PDF to an Unstructured partition API, which
// runs layout detection and OCR.
type UnstructuredExtractor struct {
	endpoint string
	apiKey   string
	strategy string
	client   *http.Client
}

func NewUnstructuredExtractor(baseURL, apiKey string) *UnstructuredExtractor {
	return &UnstructuredExtractor{
		endpoint: strings.TrimRight(baseURL, "/") + "/general/v0/general",
		apiKey:   apiKey,
		strategy: "hi_res",
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

func (u *UnstructuredExtractor) Name() string { return u.strategy }

func (u *UnstructuredExtractor) Extract(ctx context.Context, path string) ([]Block, error) {
	body, contentType, err := u.buildForm(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create unstructured request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if u.apiKey != "" {
		req.Header.Set("unstructured-api-key", u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call unstructured API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read unstructured response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unstructured API returned status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	return parseUnstructuredElements(data)
}

func (u *UnstructuredExtractor) buildForm(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open staged pdf: %w", err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	part, err := form.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy pdf into form: %w", err)
	}
	fields := map[string]string{
		"strategy":              u.strategy,
		"ocr_languages":         "eng",
		"infer_table_structure": "true",
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf, form.FormDataContentType(), nil
}

// parseUnstructuredElements converts the element list returned by the
// partition API into blocks, keeping the element order.
func parseUnstructuredElements(data []byte) ([]Block, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("unstructured API returned invalid json")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("unstructured API returned %s, expected an element list", parsed.Type)
	}

	elements := parsed.Array()
	blocks := make([]Block, 0, len(elements))
	for _, element := range elements {
		blocks = append(blocks, Block{
			Text: element.Get("text").String(),
			Page: int(element.Get("metadata.page_number").Int()),
		})
	}
	return blocks, nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
