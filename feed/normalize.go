package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

// DefaultName substitutes for entries the feed ships without a usable
// title or name. Name is a required column, so it is never left null.
const DefaultName = "Sem nome"

// localTZ is the feed's home timezone. Every stored timestamp is
// localized to it so that agenda dates line up with the printed program.
var localTZ = loadLocalTZ()

// LocalTZ returns the feed's home timezone.
func LocalTZ() *time.Location {
	return localTZ
}

func loadLocalTZ() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// Brazil dropped DST in 2019, so a fixed offset is equivalent.
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// =============================================================================
// FIELD COERCION
// Every function here is total: any unparseable input yields an absent
// value, never an error. A single bad field must not sink its record.
// =============================================================================

// rawScalar extracts the scalar text of a raw JSON value. Returns ok=false
// for missing values, JSON null, and non-scalar values.
func rawScalar(raw json.RawMessage) (string, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", false
	}
	if strings.HasPrefix(s, "\"") {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return "", false
		}
		return unquoted, true
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return "", false
	}
	return s, true
}

// parseFloat coerces a raw feed value ("" and null included) to a float.
// The feed sends coordinates both as numbers and as numeric strings, so
// the text goes through decimal for an exact parse either way.
func parseFloat(raw json.RawMessage) *float64 {
	s, ok := rawScalar(raw)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// parseInt coerces a raw feed value to an integer. Fractional values are
// rejected rather than truncated.
func parseInt(raw json.RawMessage) *int64 {
	s, ok := rawScalar(raw)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return nil
	}
	n := d.IntPart()
	return &n
}

// parseID extracts a feed-supplied entity id. Returns 0 for missing,
// unparseable, or non-positive ids; callers drop such records.
func parseID(raw json.RawMessage) int64 {
	id := parseInt(raw)
	if id == nil || *id <= 0 {
		return 0
	}
	return *id
}

// normalizeAddress prefers a trimmed non-empty address and falls back to
// the description. Never yields an empty or whitespace-only string.
func normalizeAddress(address, description string) *string {
	if v := strings.TrimSpace(address); v != "" {
		return &v
	}
	if v := strings.TrimSpace(description); v != "" {
		return &v
	}
	return nil
}

// displayName prefers title over name, substituting DefaultName when
// both are blank.
func displayName(title, name string) string {
	if v := strings.TrimSpace(title); v != "" {
		return v
	}
	if v := strings.TrimSpace(name); v != "" {
		return v
	}
	return DefaultName
}

// Layouts carrying an explicit zone offset; values parsed with these are
// converted to localTZ. Offset-less layouts get localTZ attached as-is.
var (
	zonedLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	timeOfDayLayouts = []string{
		"15:04:05",
		"15:04",
	}
)

// parseDateTime parses an ISO-8601 date or datetime string into the local
// event timezone. Malformed input yields nil.
func parseDateTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			local := t.In(localTZ)
			return &local
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, localTZ); err == nil {
			return &t
		}
	}
	return nil
}

// combineDateTime composes a timestamp from a date string and an optional
// time-of-day string. A parseable time-of-day replaces the date's clock in
// the local timezone; an absent or malformed one leaves the date as-is
// (midnight local for date-only input).
func combineDateTime(dateValue, timeValue string) *time.Time {
	base := parseDateTime(dateValue)
	if base == nil {
		return nil
	}

	timeValue = strings.TrimSpace(timeValue)
	if timeValue == "" {
		return base
	}

	for _, layout := range timeOfDayLayouts {
		if tod, err := time.Parse(layout, timeValue); err == nil {
			year, month, day := base.Date()
			t := time.Date(year, month, day,
				tod.Hour(), tod.Minute(), tod.Second(), 0, localTZ)
			return &t
		}
	}
	return base
}

// fixEndBeforeStart advances the end timestamp by exactly one day when it
// does not come strictly after the start. Parades crossing midnight share
// a single date field, so an earlier end time means "next day".
func fixEndBeforeStart(start, end *time.Time) *time.Time {
	if start == nil || end == nil {
		return end
	}
	if end.After(*start) {
		return end
	}
	next := end.AddDate(0, 0, 1)
	return &next
}

// optionalText trims a free-text field, mapping blank to absent.
func optionalText(s string) *string {
	if v := strings.TrimSpace(s); v != "" {
		return &v
	}
	return nil
}

// =============================================================================
// BATCH BUILDING
// =============================================================================

// Batch holds the normalized records of one feed document, ready for the
// reconciler, in referential order.
type Batch struct {
	Neighborhoods []sqlite.Neighborhood
	ServiceTypes  []sqlite.ServiceType
	Services      []sqlite.Service
	Parades       []sqlite.Parade

	// Dropped counts records skipped for a missing id (or, for
	// neighborhoods and service types, a missing name). A data-quality
	// signal, not an error.
	Dropped int
}

// BuildBatch normalizes a document into store records. Service-type
// references on services are resolved by name against the service types of
// this same batch only; unresolved names yield a nil reference.
func BuildBatch(doc *Document) Batch {
	var b Batch

	for _, item := range doc.Neighborhoods {
		id := parseID(item.ID)
		name := strings.TrimSpace(item.Name)
		if id == 0 || name == "" {
			b.Dropped++
			continue
		}
		b.Neighborhoods = append(b.Neighborhoods, sqlite.Neighborhood{ID: id, Name: name})
	}

	// Batch-local name -> id mapping, rebuilt every invocation. The feed
	// references service types from services by name, not id.
	serviceTypeIDs := make(map[string]int64)
	for _, item := range doc.ServiceTypes {
		id := parseID(item.ID)
		name := displayServiceTypeName(item)
		if id == 0 || name == "" {
			b.Dropped++
			continue
		}
		serviceTypeIDs[name] = id
		b.ServiceTypes = append(b.ServiceTypes, sqlite.ServiceType{ID: id, Name: name})
	}

	for _, item := range doc.Services {
		id := parseID(item.ID)
		if id == 0 {
			b.Dropped++
			continue
		}

		var serviceTypeID *int64
		if typeID, ok := serviceTypeIDs[item.ServiceTypeName]; ok {
			serviceTypeID = &typeID
		}

		b.Services = append(b.Services, sqlite.Service{
			ID:             id,
			Name:           displayName(item.Title, item.Name),
			Description:    optionalText(item.Description),
			Address:        normalizeAddress(item.Address, item.Description),
			Latitude:       parseFloat(item.Lat),
			Longitude:      parseFloat(item.Lng),
			NeighborhoodID: parseInt(item.NeighborhoodID),
			ServiceTypeID:  serviceTypeID,
		})
	}

	for _, item := range doc.ParadeItems() {
		id := parseID(item.ID)
		if id == 0 {
			b.Dropped++
			continue
		}

		startAt := combineDateTime(item.Date, item.ParadeTime)
		endAt := fixEndBeforeStart(startAt, combineDateTime(item.Date, item.EndTime))

		b.Parades = append(b.Parades, sqlite.Parade{
			ID:             id,
			Name:           displayName(item.Title, item.Name),
			Description:    optionalText(item.Description),
			Location:       normalizeAddress(item.Address, item.Description),
			StartAt:        startAt,
			EndAt:          endAt,
			Latitude:       parseFloat(item.Lat),
			Longitude:      parseFloat(item.Lng),
			FoundationYear: parseInt(item.FoundationYear),
			NeighborhoodID: parseInt(item.NeighborhoodID),
		})
	}

	return b
}

// displayServiceTypeName prefers name over title for service types; the
// same string keys the batch-local lookup used by services.
func displayServiceTypeName(item ServiceTypeItem) string {
	if v := strings.TrimSpace(item.Name); v != "" {
		return v
	}
	return strings.TrimSpace(item.Title)
}
