package utils

import (
	"reflect"
	"strings"
)

// jsonFieldName makes validation messages use the wire name (mediaIds, not MediaIDs).
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
