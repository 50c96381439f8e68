package domain

import (
	"fmt"
	"strings"
)

// Kind is the asset class of an instrument.
type Kind string

const (
	KindIndex  Kind = "I"
	KindStock  Kind = "S"
	KindForex  Kind = "F"
	KindCrypto Kind = "C"
)

var kindLabels = map[Kind]string{
	KindIndex:  "Index",
	KindStock:  "Stock",
	KindForex:  "Forex",
	KindCrypto: "Crypto",
}

// ParseKind accepts either the one-letter code or the label ("Stock", "stock").
func ParseKind(s string) (Kind, error) {
	for k, label := range kindLabels {
		if s == string(k) || strings.EqualFold(s, label) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown asset kind: %q", s)
}

func (k Kind) String() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

func (k Kind) IsValid() bool {
	_, ok := kindLabels[k]
	return ok
}

// KindSet is the set of kinds a source is applicable to.
type KindSet map[Kind]struct{}

func NewKindSet(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s KindSet) Contains(k Kind) bool {
	_, ok := s[k]
	return ok
}
