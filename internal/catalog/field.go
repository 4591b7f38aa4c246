package catalog

// Category identifies which partition of the metadata catalog a field
// belongs to. The values match the source_type scalar stored in Milvus.
type Category string

const (
	CategoryProfileAttribute Category = "PROFILE_ATTRIBUTE"
	CategoryEvent            Category = "EVENT"
	CategoryEventAttribute   Category = "EVENT_ATTRIBUTE"
)

// Field is one resolvable entity in the metadata catalog. Fields are written
// once by the ingestion pipeline and are immutable during query resolution.
type Field struct {
	// ID is the globally unique concept identifier, e.g.
	// "PROFILE_UserProfile_country".
	ID string

	Category Category

	// ParentEventID is set only for CategoryEventAttribute and names the
	// owning event's ID.
	ParentEventID string

	// SourceName is the human-facing name of the owning archive or event.
	SourceName string

	// FieldName is the machine-facing name of the attribute itself.
	FieldName string

	// Description is the free text the field's embedding is generated from.
	// It may include enumerated value lists.
	Description string

	// RawMetadata carries the original catalog metadata as a JSON string.
	RawMetadata string
}
