package passage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/yomu/internal/domain"
)

const (
	titlePrefix = "# "
	separator   = "---"
)

type state int

const (
	seeking state = iota
	readingBody
)

// ParseFile reads a passage file and names untitled passages after the
// file.
func ParseFile(path string) ([]domain.Text, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	base := filepath.Base(path)
	return Parse(file, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Parse splits r into passages. Passages are separated by a line holding
// only "---". A passage may open with a "# Title" line; otherwise it gets
// fallbackTitle, numbered from the second untitled passage on. Blank
// passages are dropped.
func Parse(r io.Reader, fallbackTitle string) ([]domain.Text, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var texts []domain.Text
	var title string
	var body []string
	untitled := 0
	currentState := seeking

	finish := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content != "" {
			if title == "" {
				untitled++
				title = fallbackTitle
				if untitled > 1 {
					title = fmt.Sprintf("%s (%d)", fallbackTitle, untitled)
				}
			}
			texts = append(texts, domain.Text{Title: title, Content: content})
		}
		title = ""
		body = nil
		currentState = seeking
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == separator {
			finish()
			continue
		}

		switch currentState {
		case seeking:
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.HasPrefix(line, titlePrefix) {
				title = strings.TrimSpace(line[len(titlePrefix):])
			} else {
				body = append(body, line)
			}
			currentState = readingBody
		case readingBody:
			body = append(body, line)
		}
	}

	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return texts, nil
}
