package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	imgutil "nrrelic/internal/image"
)

// TesseractRecognizer распознает текст через libtesseract
type TesseractRecognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
	scale  float64
}

// NewTesseractRecognizer создает клиента для заданного языка (например chi_sim)
func NewTesseractRecognizer(language string, scale float64) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка установки языка OCR %q: %v", language, err)
	}
	return &TesseractRecognizer{client: client, scale: scale}, nil
}

// Recognize возвращает непустые строки текста на изображении
func (t *TesseractRecognizer) Recognize(img image.Image) ([]string, error) {
	data, err := imgutil.ImageToBytes(imgutil.PrepareForOCR(img, t.scale))
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("ошибка передачи изображения в OCR: %v", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("ошибка при выполнении OCR: %v", err)
	}
	return SplitLines(text), nil
}

// Close освобождает клиента tesseract
func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// ExecRecognizer запускает внешний OCR-исполняемый файл с путем к PNG
type ExecRecognizer struct {
	executable string
	timeout    time.Duration
}

// NewExecRecognizer создает распознаватель на внешней программе
func NewExecRecognizer(executable string, timeout time.Duration) *ExecRecognizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecRecognizer{executable: executable, timeout: timeout}
}

// Recognize сохраняет изображение во временный файл и разбирает вывод программы
func (e *ExecRecognizer) Recognize(img image.Image) ([]string, error) {
	tempFile, err := os.CreateTemp("", "affix_*.png")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %v", err)
	}
	tempFile.Close()
	defer os.Remove(tempFile.Name())

	if err := imgutil.SaveImage(img, tempFile.Name()); err != nil {
		return nil, err
	}

	output, err := RunOCR(e.executable, tempFile.Name(), e.timeout)
	if err != nil {
		return nil, err
	}
	_, _, rawText := ParseOCRResult(output)
	return SplitLines(rawText), nil
}

// RunOCR запускает внешнюю программу и возвращает ее вывод
var RunOCR = func(executable, imagePath string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, imagePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ошибка при выполнении OCR: %v, вывод: %s", err, string(output))
	}
	return string(output), nil
}

// SplitLines режет текст на строки, отбрасывая пустые
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// jsonResult ответ внешней программы
type jsonResult struct {
	TextRecognition struct {
		Success bool   `json:"success"`
		RawText string `json:"raw_text"`
	} `json:"text_recognition"`
}

const (
	jsonStart = "=== JSON START ==="
	jsonEnd   = "=== JSON END ==="
)

// fixMalformedJSON добавляет пропущенные запятые между объектами
func fixMalformedJSON(jsonData string) string {
	pattern := regexp.MustCompile(`(\s*}\s*)(\s*{\s*")`)
	return pattern.ReplaceAllString(jsonData, `$1,$2`)
}

// ParseOCRResult делит вывод на отладочную часть, JSON и raw_text.
// Если JSON не найден, весь вывод считается распознанным текстом.
func ParseOCRResult(output string) (debugInfo, jsonData, rawText string) {
	startIndex := strings.Index(output, jsonStart)
	endIndex := strings.Index(output, jsonEnd)

	switch {
	case startIndex != -1 && endIndex > startIndex:
		debugInfo = strings.TrimSpace(output[:startIndex])
		jsonData = strings.TrimSpace(output[startIndex+len(jsonStart) : endIndex])
	default:
		open := strings.Index(output, "{")
		end := strings.LastIndex(output, "}")
		if open == -1 || end <= open {
			return "", "", output
		}
		debugInfo = strings.TrimSpace(output[:open])
		jsonData = strings.TrimSpace(output[open : end+1])
	}

	jsonData = fixMalformedJSON(jsonData)
	var result jsonResult
	if err := json.Unmarshal([]byte(jsonData), &result); err != nil {
		return debugInfo, jsonData, output
	}
	return debugInfo, jsonData, result.TextRecognition.RawText
}
