package sqlite

import (
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	sqlitecore "github.com/FocuswithJustin/folio/core/sqlite"
	"github.com/FocuswithJustin/folio/internal/formats/native"
)

var schema = []string{
	`PRAGMA application_id = ` + strconv.Itoa(applicationID),
	`PRAGMA user_version = ` + strconv.Itoa(native.Version),
	`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE styles (ord INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE, definition TEXT NOT NULL, revision TEXT)`,
	`CREATE TABLE lists (id INTEGER PRIMARY KEY, definition TEXT NOT NULL)`,
	`CREATE TABLE variables (ord INTEGER PRIMARY KEY, name TEXT NOT NULL, value TEXT NOT NULL)`,
	`CREATE TABLE parts (ord INTEGER PRIMARY KEY, name TEXT NOT NULL, content_type TEXT NOT NULL, external INTEGER NOT NULL, data BLOB)`,
	`CREATE TABLE media (hash TEXT PRIMARY KEY, content_type TEXT NOT NULL, data BLOB NOT NULL)`,
	`CREATE TABLE nodes (
		id INTEGER PRIMARY KEY,
		parent INTEGER REFERENCES nodes(id),
		ord INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		format TEXT,
		attrs TEXT,
		mark TEXT,
		format_mark TEXT
	)`,
	`CREATE INDEX nodes_parent ON nodes (parent, ord)`,
}

// jsonOrNil marshals v, mapping nil pointers to SQL NULL.
func jsonOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func save(doc *dom.Document, opts *codec.SaveOptions) ([]byte, error) {
	f := native.ToFile(doc)
	return sqlitecore.Build(func(db *sql.DB) error {
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				return errors.NewIO("create schema", "", err)
			}
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := write(tx, f, opts); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func write(tx *sql.Tx, f *native.File, opts *codec.SaveOptions) error {
	props, err := jsonText(f.Props)
	if err != nil {
		return err
	}
	vba, err := jsonOrNil(f.VBA)
	if err != nil {
		return err
	}
	meta := [][2]any{
		{"folio", strconv.Itoa(f.Folio)},
		{"id", f.ID},
		{"props", props},
		{"default_tab_stop", strconv.FormatFloat(f.DefaultTabStop, 'g', -1, 64)},
	}
	if vba != nil {
		meta = append(meta, [2]any{"vba", vba})
	}
	for _, kv := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return errors.NewIO("insert meta", "", err)
		}
	}

	revisions := map[string]dom.StyleRevision{}
	for _, sr := range f.StyleRevisions {
		revisions[sr.Style] = sr.Revision
	}
	for i, st := range f.Styles {
		def, err := jsonText(st)
		if err != nil {
			return err
		}
		var rev any
		if r, ok := revisions[st.Name]; ok {
			if rev, err = jsonOrNil(&r); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`INSERT INTO styles (ord, name, definition, revision) VALUES (?, ?, ?, ?)`, i, st.Name, def, rev); err != nil {
			return errors.NewIO("insert style", st.Name, err)
		}
	}
	for _, l := range f.Lists {
		def, err := jsonText(l)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO lists (id, definition) VALUES (?, ?)`, l.ID, def); err != nil {
			return errors.NewIO("insert list", strconv.Itoa(l.ID), err)
		}
	}
	for i, v := range f.Variables {
		if _, err := tx.Exec(`INSERT INTO variables (ord, name, value) VALUES (?, ?, ?)`, i, v.Name, v.Value); err != nil {
			return errors.NewIO("insert variable", v.Name, err)
		}
	}
	for i, p := range f.Parts {
		if _, err := tx.Exec(`INSERT INTO parts (ord, name, content_type, external, data) VALUES (?, ?, ?, ?, ?)`,
			i, p.Name, p.ContentType, p.External, p.Data); err != nil {
			return errors.NewIO("insert part", p.Name, err)
		}
	}
	for _, m := range f.Media {
		if _, err := tx.Exec(`INSERT INTO media (hash, content_type, data) VALUES (?, ?, ?)`, m.Hash, m.ContentType, m.Data); err != nil {
			return errors.NewIO("insert media", m.Hash, err)
		}
	}

	ins, err := tx.Prepare(`INSERT INTO nodes (id, parent, ord, type, text, format, attrs, mark, format_mark) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	next := int64(0)
	var insert func(parent any, ord int, n native.Node) error
	insert = func(parent any, ord int, n native.Node) error {
		if err := opts.Err(); err != nil {
			return err
		}
		next++
		id := next
		cols := make([]any, 4)
		var err error
		if cols[0], err = jsonOrNil(n.Format); err != nil {
			return err
		}
		if cols[1], err = jsonOrNil(n.Attrs); err != nil {
			return err
		}
		if cols[2], err = jsonOrNil(n.Mark); err != nil {
			return err
		}
		if cols[3], err = jsonOrNil(n.FormatMark); err != nil {
			return err
		}
		if _, err := ins.Exec(id, parent, ord, string(n.Type), n.Text, cols[0], cols[1], cols[2], cols[3]); err != nil {
			return errors.NewIO("insert node", strconv.FormatInt(id, 10), err)
		}
		for i, c := range n.Children {
			if err := insert(id, i, c); err != nil {
				return err
			}
		}
		return nil
	}
	for i, s := range f.Sections {
		if err := insert(nil, i, s); err != nil {
			return err
		}
	}
	return nil
}

func load(data []byte, doc *dom.Document, opts *codec.LoadOptions) error {
	db, closeDB, err := sqlitecore.OpenBytes(data)
	if err != nil {
		return err
	}
	defer closeDB()
	f, err := read(db, opts)
	if err != nil {
		return err
	}
	return native.FromFile(f, doc, opts)
}

func notFolio(err error) error {
	return errors.NewParse("sqlite", "", "not a folio database: "+err.Error())
}

// unmarshal decodes a nullable JSON column into a new value.
func unmarshal[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return nil, errors.NewParse("sqlite", "", err.Error())
	}
	return v, nil
}

func read(db *sql.DB, opts *codec.LoadOptions) (*native.File, error) {
	f := &native.File{}
	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, notFolio(err)
	}
	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, notFolio(err)
		}
		meta[k] = v
	}
	rows.Close()
	if f.Folio, err = strconv.Atoi(meta["folio"]); err != nil {
		return nil, errors.NewParse("sqlite", "", "missing folio version")
	}
	f.ID = meta["id"]
	if p := meta["props"]; p != "" {
		if err := json.Unmarshal([]byte(p), &f.Props); err != nil {
			return nil, errors.NewParse("sqlite", "", err.Error())
		}
	}
	if ts := meta["default_tab_stop"]; ts != "" {
		f.DefaultTabStop, _ = strconv.ParseFloat(ts, 64)
	}
	if v, ok := meta["vba"]; ok {
		if f.VBA, err = unmarshal[dom.VBAProject](sql.NullString{String: v, Valid: true}); err != nil {
			return nil, err
		}
	}

	if err := each(db, `SELECT definition, revision FROM styles ORDER BY ord`, func(rows *sql.Rows) error {
		var def, rev sql.NullString
		if err := rows.Scan(&def, &rev); err != nil {
			return err
		}
		st, err := unmarshal[dom.Style](def)
		if err != nil || st == nil {
			return errors.NewParse("sqlite", "", "style without definition")
		}
		f.Styles = append(f.Styles, *st)
		r, err := unmarshal[dom.StyleRevision](rev)
		if err != nil {
			return err
		}
		if r != nil {
			f.StyleRevisions = append(f.StyleRevisions, native.StyleRevision{Style: st.Name, Revision: *r})
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := each(db, `SELECT definition FROM lists ORDER BY id`, func(rows *sql.Rows) error {
		var def sql.NullString
		if err := rows.Scan(&def); err != nil {
			return err
		}
		l, err := unmarshal[dom.ListDef](def)
		if err != nil || l == nil {
			return errors.NewParse("sqlite", "", "list without definition")
		}
		f.Lists = append(f.Lists, *l)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := each(db, `SELECT name, value FROM variables ORDER BY ord`, func(rows *sql.Rows) error {
		var v native.Variable
		if err := rows.Scan(&v.Name, &v.Value); err != nil {
			return err
		}
		f.Variables = append(f.Variables, v)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := each(db, `SELECT name, content_type, external, data FROM parts ORDER BY ord`, func(rows *sql.Rows) error {
		var p dom.CustomPart
		if err := rows.Scan(&p.Name, &p.ContentType, &p.External, &p.Data); err != nil {
			return err
		}
		f.Parts = append(f.Parts, p)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := each(db, `SELECT hash, content_type, data FROM media ORDER BY hash`, func(rows *sql.Rows) error {
		var m native.Media
		if err := rows.Scan(&m.Hash, &m.ContentType, &m.Data); err != nil {
			return err
		}
		f.Media = append(f.Media, m)
		return nil
	}); err != nil {
		return nil, err
	}
	sections, err := readNodes(db, opts)
	if err != nil {
		return nil, err
	}
	f.Sections = sections
	return f, nil
}

// each runs query and calls fn for every row.
func each(db *sql.DB, query string, fn func(*sql.Rows) error) error {
	rows, err := db.Query(query)
	if err != nil {
		return notFolio(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// readNodes rebuilds the section trees. Rows come sorted by parent and
// position, so children are attached in document order.
func readNodes(db *sql.DB, opts *codec.LoadOptions) ([]native.Node, error) {
	type row struct {
		node     native.Node
		parent   int64
		children []int64
	}
	byID := map[int64]*row{}
	var roots, order []int64
	err := each(db, `SELECT id, parent, type, text, format, attrs, mark, format_mark FROM nodes ORDER BY parent, ord, id`, func(rows *sql.Rows) error {
		if err := opts.Err(); err != nil {
			return err
		}
		var (
			id                     int64
			parent                 sql.NullInt64
			typ, text              string
			format, attrs, m, fmtm sql.NullString
		)
		if err := rows.Scan(&id, &parent, &typ, &text, &format, &attrs, &m, &fmtm); err != nil {
			return err
		}
		t, err := dom.ParseNodeType(typ)
		if err != nil {
			return errors.NewParse("sqlite", "", "node "+strconv.FormatInt(id, 10)+": "+err.Error())
		}
		r := &row{node: native.Node{Type: t, Text: text}, parent: parent.Int64}
		if r.node.Format, err = unmarshal[dom.Formatting](format); err != nil {
			return err
		}
		if r.node.Attrs, err = unmarshal[dom.Attrs](attrs); err != nil {
			return err
		}
		if r.node.Mark, err = unmarshal[dom.RevisionMark](m); err != nil {
			return err
		}
		if r.node.FormatMark, err = unmarshal[dom.RevisionMark](fmtm); err != nil {
			return err
		}
		byID[id] = r
		order = append(order, id)
		if !parent.Valid {
			roots = append(roots, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		r := byID[id]
		if r.parent == 0 {
			continue
		}
		p, ok := byID[r.parent]
		if !ok {
			return nil, errors.NewParse("sqlite", "", "node "+strconv.FormatInt(id, 10)+" has a missing parent")
		}
		p.children = append(p.children, id)
	}
	var build func(id int64, depth int) (native.Node, error)
	build = func(id int64, depth int) (native.Node, error) {
		if depth > len(order) {
			return native.Node{}, errors.NewParse("sqlite", "", "node tree has a cycle")
		}
		r := byID[id]
		n := r.node
		for _, c := range r.children {
			child, err := build(c, depth+1)
			if err != nil {
				return native.Node{}, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}
	var out []native.Node
	for _, id := range roots {
		n, err := build(id, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
