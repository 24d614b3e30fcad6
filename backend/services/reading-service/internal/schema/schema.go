package schema

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks every failure to load the schema file.
var ErrConfig = errors.New("schema: invalid configuration")

// ConfigError describes why the schema file could not be used.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("schema config %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ReservedColumn is generated for every table and cannot be declared.
const ReservedColumn = "id"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is a declared column: a name plus the storage type token passed through to DDL.
type Column struct {
	Name string
	Type string
}

// Table is a declared table with its columns in file order.
type Table struct {
	Name    string
	Columns []Column
}

// HasColumn reports whether name is one of the declared columns.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Descriptor is the read-only table layout taken from configuration.
type Descriptor struct {
	tables []Table
	index  map[string]int
}

// NewDescriptor builds a descriptor from already validated tables.
func NewDescriptor(tables ...Table) *Descriptor {
	d := &Descriptor{index: make(map[string]int, len(tables))}
	for _, t := range tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		d.index[t.Name] = len(d.tables)
		d.tables = append(d.tables, Table{Name: t.Name, Columns: cols})
	}
	return d
}

// Tables returns the tables in declaration order.
func (d *Descriptor) Tables() []Table {
	out := make([]Table, len(d.tables))
	copy(out, d.tables)
	return out
}

// Table looks a table up by name.
func (d *Descriptor) Table(name string) (Table, bool) {
	i, ok := d.index[name]
	if !ok {
		return Table{}, false
	}
	return d.tables[i], true
}

// Has reports whether name is a declared table.
func (d *Descriptor) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// ConnectionParams carries what the gateway needs to dial the database.
type ConnectionParams struct {
	DSN string
}

type databaseSection struct {
	Constr   string `yaml:"constr"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type fileLayout struct {
	Database *databaseSection `yaml:"database"`
	Tables   yaml.Node        `yaml:"tables"`
}

// Load reads and validates the schema file at path.
func Load(path string) (*Descriptor, ConnectionParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConnectionParams{}, &ConfigError{Path: path, Reason: "read file", Err: err}
	}
	return Parse(path, data)
}

// Parse validates raw YAML; path is only used in error messages.
func Parse(path string, data []byte) (*Descriptor, ConnectionParams, error) {
	fail := func(reason string, err error) (*Descriptor, ConnectionParams, error) {
		return nil, ConnectionParams{}, &ConfigError{Path: path, Reason: reason, Err: err}
	}

	var layout fileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return fail("decode yaml", err)
	}

	if layout.Database == nil {
		return fail("missing database section", nil)
	}
	params, err := connectionParams(*layout.Database)
	if err != nil {
		return fail("database", err)
	}

	tables, err := parseTables(&layout.Tables)
	if err != nil {
		return fail("tables", err)
	}

	return NewDescriptor(tables...), params, nil
}

func connectionParams(db databaseSection) (ConnectionParams, error) {
	if constr := strings.TrimSpace(db.Constr); constr != "" {
		return ConnectionParams{DSN: constr}, nil
	}

	var missing []string
	if db.Host == "" {
		missing = append(missing, "host")
	}
	if db.Port == 0 {
		missing = append(missing, "port")
	}
	if db.User == "" {
		missing = append(missing, "user")
	}
	if db.Password == "" {
		missing = append(missing, "password")
	}
	if db.DBName == "" {
		missing = append(missing, "dbname")
	}
	if len(missing) > 0 {
		return ConnectionParams{}, fmt.Errorf("constr or %s required", strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.DBName,
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{db.SSLMode}}.Encode()
	}
	return ConnectionParams{DSN: u.String()}, nil
}

func parseTables(node *yaml.Node) ([]Table, error) {
	if node.Kind == 0 {
		return nil, errors.New("section missing")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at line %d", node.Line)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("no tables declared")
	}

	seen := make(map[string]struct{})
	tables := make([]Table, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if !identifierRe.MatchString(name) {
			return nil, fmt.Errorf("table name %q is not a plain identifier", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("table %q declared twice", name)
		}
		seen[name] = struct{}{}

		cols, err := parseFields(name, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func parseFields(table string, node *yaml.Node) ([]Column, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("table %q: expected mapping", table)
	}

	var fields *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "fields" {
			fields = node.Content[i+1]
		}
	}
	if fields == nil {
		return nil, fmt.Errorf("table %q: fields missing", table)
	}
	if fields.Kind != yaml.MappingNode || len(fields.Content) == 0 {
		return nil, fmt.Errorf("table %q: fields must be a non-empty mapping", table)
	}

	seen := make(map[string]struct{})
	cols := make([]Column, 0, len(fields.Content)/2)
	for i := 0; i+1 < len(fields.Content); i += 2 {
		name := fields.Content[i].Value
		typ := strings.TrimSpace(fields.Content[i+1].Value)
		switch {
		case !identifierRe.MatchString(name):
			return nil, fmt.Errorf("table %q: column name %q is not a plain identifier", table, name)
		case strings.EqualFold(name, ReservedColumn):
			return nil, fmt.Errorf("table %q: column %q is generated automatically", table, name)
		case fields.Content[i+1].Kind != yaml.ScalarNode || typ == "":
			return nil, fmt.Errorf("table %q: column %q needs a type", table, name)
		case strings.Contains(typ, ";"):
			return nil, fmt.Errorf("table %q: column %q has an invalid type %q", table, name, typ)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("table %q: column %q declared twice", table, name)
		}
		seen[name] = struct{}{}
		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, nil
}
