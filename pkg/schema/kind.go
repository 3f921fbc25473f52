package schema

import "strings"

// Kind discriminates the component variants a document may contain.
type Kind string

const (
	KindHeader        Kind = "header"
	KindParagraph     Kind = "paragraph"
	KindText          Kind = "text"
	KindTextarea      Kind = "textarea"
	KindSelect        Kind = "select"
	KindFile          Kind = "file"
	KindDate          Kind = "date"
	KindSignature     Kind = "signature"
	KindMap           Kind = "map"
	KindQRScanner     Kind = "qrscanner"
	KindLink          Kind = "link"
	KindCalculated    Kind = "calculated"
	KindCondition     Kind = "condition"
	KindRepeater      Kind = "repeater"
	KindTableStatic   Kind = "table-static"
	KindTableDynamic  Kind = "table-dynamic"
	KindTimespan      Kind = "timespan"
	KindLock          Kind = "lock"
	KindPageBreak     Kind = "pagebreak"
	KindAutoIncrement Kind = "auto_increment"
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	KindHeader, KindParagraph, KindText, KindTextarea, KindSelect, KindFile,
	KindDate, KindSignature, KindMap, KindQRScanner, KindLink, KindCalculated,
	KindCondition, KindRepeater, KindTableStatic, KindTableDynamic, KindTimespan,
	KindLock, KindPageBreak, KindAutoIncrement,
}

// ParseKind maps a document type string to a Kind.
// Matching ignores case and treats "-" and "_" in auto_increment alike.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "auto-increment" {
		k = KindAutoIncrement
	}
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// HoldsData reports whether nodes of this kind must declare a field_name.
func (k Kind) HoldsData() bool {
	switch k {
	case KindText, KindTextarea, KindSelect, KindFile, KindDate, KindSignature,
		KindMap, KindQRScanner, KindCalculated, KindRepeater, KindTableDynamic,
		KindTimespan, KindLock, KindAutoIncrement:
		return true
	}
	return false
}

// Presentational reports whether the kind only affects rendering.
func (k Kind) Presentational() bool {
	switch k {
	case KindHeader, KindParagraph, KindTableStatic, KindPageBreak, KindLink:
		return true
	}
	return false
}
