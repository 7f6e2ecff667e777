package scoring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// YAMNetClasses is the length of a YAMNet probability vector.
const YAMNetClasses = 521

// DefaultTargetPatterns are the display-name fragments that select the dog
// related classes.
var DefaultTargetPatterns = []string{
	"Bark", "Bow-wow", "Dog", "Growling", "Howl", "Yip", "Animal", "Domestic animals, pets",
}

// ClassMap maps scorer output indices to display names.
type ClassMap struct {
	size   int
	labels map[int]string
}

// NewClassMap builds a map of size classes from the given labels. Indices
// without a label fall back to their decimal form.
func NewClassMap(size int, labels map[int]string) (*ClassMap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidClassMap, size)
	}
	m := &ClassMap{size: size, labels: make(map[int]string, len(labels))}
	for idx, name := range labels {
		if idx < 0 || idx >= size {
			return nil, fmt.Errorf("%w: index %d outside [0, %d)", ErrInvalidClassMap, idx, size)
		}
		m.labels[idx] = name
	}
	return m, nil
}

// DefaultClassMap returns the YAMNet indices relevant to dog detection plus
// a few common background classes.
func DefaultClassMap() *ClassMap {
	m, _ := NewClassMap(YAMNetClasses, map[int]string{
		0:   "Speech",
		67:  "Animal",
		68:  "Domestic animals, pets",
		69:  "Dog",
		70:  "Bark",
		71:  "Yip",
		72:  "Howl",
		73:  "Bow-wow",
		74:  "Growling",
		75:  "Whimper (dog)",
		76:  "Cat",
		132: "Music",
		494: "Silence",
	})
	return m
}

// LoadClassMap parses a class CSV with an index,mid,display_name header, the
// format shipped with YAMNet.
func LoadClassMap(r io.Reader) (*ClassMap, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrInvalidClassMap, err)
	}
	nameCol, indexCol := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "display_name":
			nameCol = i
		case "index":
			indexCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("%w: missing display_name column", ErrInvalidClassMap)
	}

	labels := make(map[int]string)
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidClassMap, row+1, err)
		}
		idx := row
		if indexCol >= 0 {
			idx, err = strconv.Atoi(strings.TrimSpace(rec[indexCol]))
			if err != nil {
				return nil, fmt.Errorf("%w: row %d index: %w", ErrInvalidClassMap, row+1, err)
			}
		}
		labels[idx] = rec[nameCol]
	}

	size := 0
	for idx := range labels {
		if idx+1 > size {
			size = idx + 1
		}
	}
	return NewClassMap(size, labels)
}

// LoadClassMapFile opens path and parses it with LoadClassMap.
func LoadClassMapFile(path string) (*ClassMap, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open class map: %w", err)
	}
	defer f.Close()
	return LoadClassMap(f)
}

// Size returns the number of classes.
func (m *ClassMap) Size() int { return m.size }

// Label returns the display name of class idx.
func (m *ClassMap) Label(idx int) string {
	if name, ok := m.labels[idx]; ok {
		return name
	}
	return strconv.Itoa(idx)
}

// Resolve returns, in ascending index order, every class whose display name
// contains one of patterns, compared case-insensitively.
func (m *ClassMap) Resolve(patterns []string) ([]int, error) {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}

	var out []int
	for idx, name := range m.labels {
		name = strings.ToLower(name)
		for _, p := range lowered {
			if strings.Contains(name, p) {
				out = append(out, idx)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoMatchingClasses, patterns)
	}
	sort.Ints(out)
	return out, nil
}
