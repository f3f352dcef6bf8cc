// Schema DDL for the SQLite backend.
package sqlite

// Table names, also the stems of the JSONL file names.
const (
	tableObjectTypes       = "object_types"
	tableTaxonomies        = "taxonomies"
	tableTaxonomyTypes     = "taxonomy_object_types"
	tableTerms             = "terms"
	tableTermMeta          = "term_meta"
	tableTermRelationships = "term_relationships"
)

const (
	createObjectTypes = `CREATE TABLE object_types (
    name TEXT PRIMARY KEY,
    countable INTEGER NOT NULL,
    created_at TEXT NOT NULL
);`

	createTaxonomies = `CREATE TABLE taxonomies (
    name TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);`

	// position keeps registration order; it is the marker order.
	createTaxonomyTypes = `CREATE TABLE taxonomy_object_types (
    taxonomy TEXT NOT NULL,
    object_type TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (taxonomy, object_type)
);`

	createTerms = `CREATE TABLE terms (
    term_id TEXT PRIMARY KEY,
    taxonomy TEXT NOT NULL,
    name TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);`

	createTermMeta = `CREATE TABLE term_meta (
    term_id TEXT NOT NULL,
    meta_key TEXT NOT NULL,
    meta_value TEXT NOT NULL,
    PRIMARY KEY (term_id, meta_key)
);`

	createTermRelationships = `CREATE TABLE term_relationships (
    object_id TEXT NOT NULL,
    object_type TEXT NOT NULL,
    term_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (object_id, object_type, term_id)
);`
)

const (
	idxTaxonomyTypesPosition = `CREATE INDEX idx_taxonomy_types_position ON taxonomy_object_types(taxonomy, position);`
	idxTermsTaxonomy         = `CREATE INDEX idx_terms_taxonomy ON terms(taxonomy);`
	idxRelationshipsTermType = `CREATE INDEX idx_relationships_term_type ON term_relationships(term_id, object_type);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createObjectTypes,
	createTaxonomies,
	createTaxonomyTypes,
	createTerms,
	createTermMeta,
	createTermRelationships,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxTaxonomyTypesPosition,
	idxTermsTaxonomy,
	idxRelationshipsTermType,
}
