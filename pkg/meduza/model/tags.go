package model

import (
	"fmt"
	"strconv"
	"strings"
)

const tagName = "mdz"

type tagOptions struct {
	name     string
	table    string
	schema   string
	kind     string
	of       string
	primary  bool
	required bool
	skip     bool

	def        string
	hasDefault bool

	maxLen  int
	choices []string
}

// parseTag reads a tag of the form `mdz:"name=email,required,maxlen=64"`
func parseTag(tag string) (tagOptions, error) {
	opts := tagOptions{}

	tag = strings.TrimSpace(tag)
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			opts.name = value
		case "table":
			opts.table = value
		case "schema":
			opts.schema = value
		case "type":
			opts.kind = value
		case "of":
			opts.of = value
		case "primary":
			opts.primary = true
		case "required":
			opts.required = true
		case "default":
			opts.def = value
			opts.hasDefault = true
		case "maxlen":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid maxlen %q", value)
			}
			opts.maxLen = n
		case "choices":
			opts.choices = strings.Split(value, "|")
		default:
			return opts, fmt.Errorf("unknown tag option %q", key)
		}
	}

	return opts, nil
}
