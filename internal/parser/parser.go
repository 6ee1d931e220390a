// Package parser extracts text chunks from heterogeneous document formats.
// Dispatch is by file extension; an unsupported extension is a reported
// error, never a crash.
package parser

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"querybot/internal/config"
	"querybot/internal/models"
)

// ErrUnsupportedFormat reports an extension no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type parseFunc func(p *Parser, filePath string) ([]models.Chunk, error)

// Parser turns files into indexable documents, chunking long sections with
// overlap.
type Parser struct {
	chunkSize    int
	chunkOverlap int
	formats      map[string]parseFunc
}

func New(cfg *config.RAGConfig) *Parser {
	p := &Parser{
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
	p.formats = map[string]parseFunc{
		".pdf":  (*Parser).parsePDF,
		".docx": (*Parser).parseDOCX,
		".pptx": (*Parser).parsePPTX,
		".xlsx": (*Parser).parseXLSX,
		".ods":  (*Parser).parseODS,
		".txt":  (*Parser).parseText,
		".log":  (*Parser).parseText,
		".md":   (*Parser).parseMarkdown,
		".csv":  (*Parser).parseCSV,
		".json": (*Parser).parseJSON,
	}
	return p
}

// SupportedExtensions lists the extensions Parse accepts.
func (p *Parser) SupportedExtensions() []string {
	exts := make([]string, 0, len(p.formats))
	for ext := range p.formats {
		exts = append(exts, ext)
	}
	return exts
}

// Supports reports whether the extension (with leading dot) is handled.
func (p *Parser) Supports(ext string) bool {
	_, ok := p.formats[strings.ToLower(ext)]
	return ok
}

// Parse extracts documents from one file. Each returned document carries
// source, section and format metadata.
func (p *Parser) Parse(filePath string) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	fn, ok := p.formats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	chunks, err := fn(p, filePath)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(filePath), err)
	}

	source := filepath.Base(filePath)
	format := strings.TrimPrefix(ext, ".")
	docs := make([]models.Document, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: c.Content,
			Metadata: map[string]string{
				"source":  source,
				"section": c.Section,
				"format":  format,
			},
		})
	}
	return docs, nil
}

func (p *Parser) parsePDF(filePath string) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		pageText, err := reader.Page(i).GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, p.chunk(pageText, fmt.Sprintf("page %d", i))...)
	}
	return chunks, nil
}

func (p *Parser) parseDOCX(filePath string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return p.chunk(content, ""), nil
}

func (p *Parser) parsePPTX(filePath string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	slide := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slide++
		text := extractTextFromXML(string(data))
		chunks = append(chunks, p.chunk(text, fmt.Sprintf("slide %d", slide))...)
	}
	return chunks, nil
}

func (p *Parser) parseXLSX(filePath string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, sheet := range f.Sheets {
		var text strings.Builder
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		chunks = append(chunks, p.chunk(text.String(), sheet.Name)...)
	}
	return chunks, nil
}

func (p *Parser) parseODS(filePath string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		chunks = append(chunks, p.chunk(text.String(), sheetName)...)
	}
	return chunks, nil
}

func (p *Parser) parseText(filePath string) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return p.chunk(string(data), ""), nil
}

func (p *Parser) parseCSV(filePath string) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var text strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		text.WriteString(strings.Join(record, "\t"))
		text.WriteString("\n")
	}
	return p.chunk(text.String(), ""), nil
}

func (p *Parser) parseJSON(filePath string) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return p.chunk(string(pretty), ""), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if endIdx := strings.Index(part, "</a:t>"); endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// chunk splits content into overlapping chunks, breaking near word
// boundaries when possible.
func (p *Parser) chunk(content, section string) []models.Chunk {
	strs := chunkContent(content, p.chunkSize, p.chunkOverlap)
	chunks := make([]models.Chunk, 0, len(strs))
	for i, s := range strs {
		chunks = append(chunks, models.Chunk{Content: s, Section: section, ChunkID: i + 1})
	}
	return chunks
}

func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	content = strings.TrimSpace(content)
	contentLen := len(content)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		// Back off to a space or sentence end within the last 10% of the
		// chunk so words are not split mid-token.
		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(content[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		start += maxChars - overlapChars
		if start >= contentLen {
			break
		}
	}
	return chunks
}
