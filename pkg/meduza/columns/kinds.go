package columns

import "strings"

// Kind identifies the encoding used for a column
type Kind int

const (
	KindKey Kind = iota
	KindText
	KindInt
	KindUint
	KindFloat
	KindBool
	KindBinary
	KindTimestamp
	KindSet
	KindList
	KindMap
)

var kindNames = map[Kind]string{
	KindKey:       "Key",
	KindText:      "Text",
	KindInt:       "Int",
	KindUint:      "Uint",
	KindFloat:     "Float",
	KindBool:      "Bool",
	KindBinary:    "Binary",
	KindTimestamp: "Timestamp",
	KindSet:       "Set",
	KindList:      "List",
	KindMap:       "Map",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

func (k Kind) IsComposite() bool {
	return k == KindSet || k == KindList || k == KindMap
}

// ParseKind resolves a kind from its name, ignoring case
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return KindText, false
}

// NewCodec returns the codec for a scalar kind, or for a composite kind with the given element codec
func NewCodec(k Kind, of Codec) Codec {
	switch k {
	case KindKey:
		return Key{}
	case KindInt:
		return Int{}
	case KindUint:
		return Uint{}
	case KindFloat:
		return Float{}
	case KindBool:
		return Bool{}
	case KindBinary:
		return Binary{}
	case KindTimestamp:
		return Timestamp{}
	case KindSet:
		return Set{Of: of}
	case KindList:
		return List{Of: of}
	case KindMap:
		return Map{Of: of}
	}
	return Text{}
}
