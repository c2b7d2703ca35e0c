package fhir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// InstantFormat is the wire format of meta.lastUpdated and Bundle.timestamp.
const InstantFormat = "2006-01-02T15:04:05.000Z07:00"

// SubsettedSystem and SubsettedCode tag resources returned with projection.
const (
	SubsettedSystem = "http://terminology.hl7.org/CodeSystem/v3-ObservationValue"
	SubsettedCode   = "SUBSETTED"
)

// FormatInstant renders t in UTC with millisecond precision.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantFormat)
}

// Stamp returns a copy of body carrying the identity and version metadata.
// Other meta elements (profile, tag, security) are preserved.
func Stamp(body ir.IRObject, id Identity, version int, lastUpdated time.Time) ir.IRObject {
	out := ir.CloneObject(body)
	if out == nil {
		out = ir.IRObject{}
	}
	out["resourceType"] = ir.IRString(id.Type)
	out["id"] = ir.IRString(id.ID)

	meta := out.Object("meta")
	if meta == nil {
		meta = ir.IRObject{}
	}
	meta["versionId"] = ir.IRString(strconv.Itoa(version))
	meta["lastUpdated"] = ir.IRString(FormatInstant(lastUpdated))
	out["meta"] = meta
	return out
}

// MarkSubsetted adds the SUBSETTED tag to body's meta in place.
func MarkSubsetted(body ir.IRObject) {
	meta := body.Object("meta")
	if meta == nil {
		meta = ir.IRObject{}
		body["meta"] = meta
	}
	tags, _ := meta["tag"].(ir.IRArray)
	for _, t := range tags {
		if obj, ok := t.(ir.IRObject); ok && obj.String("code") == SubsettedCode {
			return
		}
	}
	meta["tag"] = append(tags, ir.IRObject{
		"system": ir.IRString(SubsettedSystem),
		"code":   ir.IRString(SubsettedCode),
	})
}

// ETag renders a weak entity tag for version: W/"3".
func ETag(version int) string {
	return fmt.Sprintf(`W/"%d"`, version)
}

// ParseETag parses W/"3" (or "3", or 3) into a version number.
func ParseETag(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "W/")
	s = strings.Trim(s, `"`)
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, NewInvalidRequest("malformed etag %q", s)
	}
	return v, nil
}

// Location renders the versioned location of a record: Type/id/_history/3.
func Location(id Identity, version int) string {
	return fmt.Sprintf("%s/_history/%d", id, version)
}
