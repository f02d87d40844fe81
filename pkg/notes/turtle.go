package notes

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/knakk/rdf"
)

// EncodeNote serializes note as a Turtle document describing resourceURL.
func EncodeNote(resourceURL string, note Note) ([]byte, error) {
	subject, err := rdf.NewIRI(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q: %w", ErrRDF, resourceURL, err)
	}

	triples := []rdf.Triple{{Subj: subject, Pred: mustIRI(rdfType), Obj: mustIRI(foafDocument)}}
	for _, field := range []struct {
		pred  string
		value string
	}{
		{dcTitle, note.Title},
		{dcSubject, note.Subject},
		{dcDescription, note.Content},
		{dcDate, note.Date},
	} {
		lit, err := rdf.NewLiteral(field.value)
		if err != nil {
			return nil, fmt.Errorf("%w: literal for %s: %w", ErrRDF, field.pred, err)
		}
		triples = append(triples, rdf.Triple{Subj: subject, Pred: mustIRI(field.pred), Obj: lit})
	}

	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.Turtle)
	enc.Namespaces = prefixes
	if err := enc.EncodeAll(triples); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrRDF, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrRDF, err)
	}
	return buf.Bytes(), nil
}

// DecodeNote parses a note document fetched from resourceURL. The id is the
// last path segment of resourceURL without its .ttl extension.
func DecodeNote(body []byte, resourceURL string) (Note, error) {
	triples, err := decodeTurtle(body, resourceURL)
	if err != nil {
		return Note{}, err
	}

	note := Note{ID: NoteID(resourceURL)}
	for _, t := range triples {
		if t.Obj.Type() != rdf.TermLiteral {
			continue
		}
		switch t.Pred.String() {
		case dcTitle:
			note.Title = t.Obj.String()
		case dcSubject:
			note.Subject = t.Obj.String()
		case dcDescription:
			note.Content = t.Obj.String()
		case dcDate:
			note.Date = t.Obj.String()
		}
	}
	return note, nil
}

// ExtractEntries lists the members of a container document in document
// order. Relative IRIs are resolved against baseURL, and posix mtime/size
// metadata is attached when present.
func ExtractEntries(body []byte, baseURL string) ([]Entry, error) {
	triples, err := decodeTurtle(body, baseURL)
	if err != nil {
		return nil, err
	}

	type meta struct {
		modified *time.Time
		size     *int64
	}
	metadata := make(map[string]*meta)
	metaFor := func(subject string) *meta {
		m, ok := metadata[subject]
		if !ok {
			m = &meta{}
			metadata[subject] = m
		}
		return m
	}
	var members []string
	seen := make(map[string]bool)

	for _, t := range triples {
		switch t.Pred.String() {
		case ldpContains:
			if t.Obj.Type() != rdf.TermIRI {
				continue
			}
			member := t.Obj.String()
			if !seen[member] {
				seen[member] = true
				members = append(members, member)
			}
		case posixMtime:
			if v, ok := integerLiteral(t.Obj); ok {
				modified := time.Unix(v, 0).UTC()
				metaFor(t.Subj.String()).modified = &modified
			}
		case posixSize:
			if v, ok := integerLiteral(t.Obj); ok {
				metaFor(t.Subj.String()).size = &v
			}
		}
	}

	entries := make([]Entry, 0, len(members))
	for _, member := range members {
		entry := Entry{URL: member}
		if m, ok := metadata[member]; ok {
			entry.Modified = m.modified
			entry.Size = m.size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// NoteID returns the note id addressed by resourceURL.
func NoteID(resourceURL string) string {
	p := resourceURL
	if u, err := url.Parse(resourceURL); err == nil {
		p = u.Path
	}
	return strings.TrimSuffix(path.Base(p), ".ttl")
}

// decodeTurtle parses body with baseURL as the document base and returns
// the triples with every IRI made absolute.
func decodeTurtle(body []byte, baseURL string) ([]rdf.Triple, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("%w: base %q is not an absolute URL", ErrRDF, baseURL)
	}

	doc := io.MultiReader(strings.NewReader("@base <"+base.String()+"> .\n"), bytes.NewReader(body))
	triples, err := rdf.NewTripleDecoder(doc, rdf.Turtle).DecodeAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrRDF, baseURL, err)
	}

	for i, t := range triples {
		if iri, ok := resolveTerm(base, t.Subj); ok {
			triples[i].Subj = iri
		}
		if iri, ok := resolveTerm(base, t.Obj); ok {
			triples[i].Obj = iri
		}
	}
	return triples, nil
}

// resolveTerm makes an IRI term absolute against base. Other terms are
// left alone.
func resolveTerm(base *url.URL, term rdf.Term) (rdf.IRI, bool) {
	if term == nil || term.Type() != rdf.TermIRI {
		return rdf.IRI{}, false
	}
	ref, err := url.Parse(term.String())
	if err != nil || ref.IsAbs() {
		return rdf.IRI{}, false
	}
	iri, err := rdf.NewIRI(base.ResolveReference(ref).String())
	if err != nil {
		return rdf.IRI{}, false
	}
	return iri, true
}

func integerLiteral(term rdf.Term) (int64, bool) {
	if term.Type() != rdf.TermLiteral {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(term.String()), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func mustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(err)
	}
	return iri
}
