// Package data reads and writes the description and code corpora: plain
// text files holding records separated by a delimiter line.
package data

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Delimiter is the line that ends every record.
const Delimiter = "*******************************************"

// ErrRecordMismatch is returned when the description and code corpora hold
// different numbers of records.
var ErrRecordMismatch = errors.New("description and code record counts differ")

// ReadRecords returns the lines of every delimiter-terminated record, each
// line without its trailing newline. Lines after the last delimiter do not
// form a record.
func ReadRecords(r io.Reader) ([][]string, error) {
	var (
		records [][]string
		record  []string
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == Delimiter {
			records = append(records, record)
			record = nil
			continue
		}
		record = append(record, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteRecords writes each item followed by the delimiter line.
func WriteRecords(w io.Writer, items []string) error {
	bw := bufio.NewWriter(w)
	for _, item := range items {
		if item != "" && !strings.HasSuffix(item, "\n") {
			item += "\n"
		}
		if _, err := bw.WriteString(item + Delimiter + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// LoadDescriptions reads a description corpus, joining the lines of each
// record with spaces.
func LoadDescriptions(path string) ([]string, error) {
	records, err := readFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, lines := range records {
		out[i] = strings.Join(lines, " ")
	}
	return out, nil
}

// LoadCodes reads a code corpus, concatenating the lines of each record.
func LoadCodes(path string) ([]string, error) {
	records, err := readFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, lines := range records {
		out[i] = strings.Join(lines, "")
	}
	return out, nil
}

// Corpus is a set of parallel descriptions and code.
type Corpus struct {
	Descriptions []string
	Codes        []string
}

// Len returns the number of pairs.
func (c Corpus) Len() int { return len(c.Descriptions) }

// LoadCorpus reads parallel description and code files.
func LoadCorpus(descPath, codePath string) (Corpus, error) {
	descs, err := LoadDescriptions(descPath)
	if err != nil {
		return Corpus{}, err
	}
	codes, err := LoadCodes(codePath)
	if err != nil {
		return Corpus{}, err
	}
	if len(descs) != len(codes) {
		return Corpus{}, fmt.Errorf("%w: %d descriptions, %d code blocks", ErrRecordMismatch, len(descs), len(codes))
	}
	return Corpus{Descriptions: descs, Codes: codes}, nil
}

// Split returns the first len-n pairs and the last n pairs, where n is the
// given fraction of the corpus rounded down.
func (c Corpus) Split(fraction float64) (Corpus, Corpus) {
	n := int(float64(c.Len()) * fraction)
	n = min(max(n, 0), c.Len())
	cut := c.Len() - n
	return Corpus{Descriptions: c.Descriptions[:cut], Codes: c.Codes[:cut]},
		Corpus{Descriptions: c.Descriptions[cut:], Codes: c.Codes[cut:]}
}
