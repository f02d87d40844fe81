package notes

// RDF vocabulary used by note documents and container listings.
const (
	nsRDF   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsFOAF  = "http://xmlns.com/foaf/0.1/"
	nsDC    = "http://purl.org/dc/elements/1.1/"
	nsLDP   = "http://www.w3.org/ns/ldp#"
	nsPOSIX = "http://www.w3.org/ns/posix/stat#"

	rdfType       = nsRDF + "type"
	foafDocument  = nsFOAF + "Document"
	dcTitle       = nsDC + "title"
	dcSubject     = nsDC + "subject"
	dcDescription = nsDC + "description"
	dcDate        = nsDC + "date"
	ldpContains   = nsLDP + "contains"
	posixMtime    = nsPOSIX + "mtime"
	posixSize     = nsPOSIX + "size"
)

var prefixes = map[string]string{
	nsRDF:  "rdf",
	nsFOAF: "foaf",
	nsDC:   "dc",
}
