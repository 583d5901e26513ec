package ml

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownLabel = errors.New("unknown label")

// LabelEncoder maps categorical values to codes in sorted order.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.New("values is empty")
	}
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)

	e.classes = classes
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}
	return nil
}

func (e *LabelEncoder) Transform(value string) (int, error) {
	if e.index == nil {
		return 0, errors.New("encoder not fitted")
	}
	code, ok := e.index[value]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, value)
	}
	return code, nil
}

func (e *LabelEncoder) FitTransform(values []string) ([]int, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	codes := make([]int, len(values))
	for i, v := range values {
		codes[i] = e.index[v]
	}
	return codes, nil
}

func (e *LabelEncoder) Inverse(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", fmt.Errorf("%w: code %d", ErrUnknownLabel, code)
	}
	return e.classes[code], nil
}

func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}
