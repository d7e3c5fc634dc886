package query

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Runner runs a statement. *sql.DB and *sql.Tx satisfy it.
type Runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect captures the few SQL differences between backends.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	// LimitAll is emitted before OFFSET when no limit is set, for
	// backends that cannot express OFFSET alone.
	LimitAll string
	Random   string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: func(int) string { return "?" },
		LimitAll:    "LIMIT -1",
		Random:      "RANDOM()",
	}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		Random:      "RANDOM()",
	}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) Dialect {
	switch driver {
	case "pgx", "postgres":
		return Postgres
	default:
		return SQLite
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type tableEntry struct {
	alias string
	table string
	join  *Join
}

type selectField struct {
	table string
	field string
	name  string
	fn    string
}

type clause struct {
	cond    *Condition
	snippet string
	args    []any
}

type whereGroup struct {
	op      Operator
	clauses []clause
}

type orderTerm struct {
	table     string
	field     string
	direction string
	random    bool
}

// SQL is the reference Builder. It renders one SELECT with joins, a
// two-level condition tree, ordering, grouping and paging.
type SQL struct {
	runner  Runner
	dialect Dialect
	joins   JoinResolver

	baseTable string
	baseField string

	tables  []*tableEntry
	byAlias map[string]*tableEntry

	fields []selectField
	where  map[int]*whereGroup
	// groupOp combines the non-zero (filter) groups.
	groupOp Operator
	orders  []orderTerm
	groupBy []string
	limit   int
	offset  int
	count   bool

	built *Built
}

// NewSQL returns a builder over baseTable whose primary key is baseField.
func NewSQL(runner Runner, dialect Dialect, joins JoinResolver, baseTable, baseField string) *SQL {
	q := &SQL{
		runner:    runner,
		dialect:   dialect,
		joins:     joins,
		baseTable: baseTable,
		baseField: baseField,
		byAlias:   map[string]*tableEntry{},
		where:     map[int]*whereGroup{},
		groupOp:   And,
	}
	q.addTable(&tableEntry{alias: baseTable, table: baseTable})
	return q
}

func (q *SQL) BaseTable() string { return q.baseTable }
func (q *SQL) BaseField() string { return q.baseField }

func (q *SQL) addTable(t *tableEntry) {
	q.tables = append(q.tables, t)
	q.byAlias[t.alias] = t
}

func (q *SQL) EnsureTable(table, relationship string) (string, error) {
	if relationship == "" {
		relationship = q.baseTable
	}
	left, ok := q.byAlias[relationship]
	if !ok {
		return "", fmt.Errorf("%w: relationship %q", ErrUnknownField, relationship)
	}
	if left.table == table {
		return left.alias, nil
	}
	alias := table
	if relationship != q.baseTable {
		alias = relationship + "_" + table
	}
	if _, exists := q.byAlias[alias]; exists {
		return alias, nil
	}
	if q.joins == nil {
		return "", fmt.Errorf("%w: %s to %s", ErrNoJoin, table, left.table)
	}
	j, ok := q.joins.JoinFor(table, left.table)
	if !ok {
		return "", fmt.Errorf("%w: %s to %s", ErrNoJoin, table, left.table)
	}
	j.Table = table
	j.LeftTable = left.alias
	q.addTable(&tableEntry{alias: alias, table: table, join: &j})
	return alias, nil
}

func (q *SQL) AddRelationship(alias string, join Join) string {
	if _, exists := q.byAlias[alias]; exists {
		return alias
	}
	j := join
	q.addTable(&tableEntry{alias: alias, table: join.Table, join: &j})
	return alias
}

func (q *SQL) AddField(tableAlias, field, name string) string {
	return q.addSelect(selectField{table: tableAlias, field: field, name: name})
}

func (q *SQL) AddAggregate(fn, tableAlias, field, name string) string {
	return q.addSelect(selectField{table: tableAlias, field: field, name: name, fn: strings.ToUpper(fn)})
}

func (q *SQL) addSelect(f selectField) string {
	if f.name == "" {
		f.name = f.field
		if f.table != "" {
			f.name = f.table + "_" + f.field
		}
		if f.fn != "" {
			f.name = strings.ToLower(f.fn) + "_" + f.name
		}
	}
	base := f.name
	for n := 1; ; n++ {
		existing, ok := q.fieldByName(f.name)
		if !ok {
			break
		}
		if existing.table == f.table && existing.field == f.field && existing.fn == f.fn {
			return existing.name
		}
		f.name = base + "_" + strconv.Itoa(n)
	}
	q.fields = append(q.fields, f)
	return f.name
}

func (q *SQL) fieldByName(name string) (selectField, bool) {
	for _, f := range q.fields {
		if f.name == name {
			return f, true
		}
	}
	return selectField{}, false
}

func (q *SQL) ClearFields() { q.fields = nil }

func (q *SQL) SetGroupOperator(op Operator) { q.groupOp = op }

func (q *SQL) SetWhereGroup(op Operator, group int) {
	g := q.group(group)
	g.op = op
}

func (q *SQL) group(id int) *whereGroup {
	g, ok := q.where[id]
	if !ok {
		g = &whereGroup{op: And}
		q.where[id] = g
	}
	return g
}

func (q *SQL) AddCondition(group int, c Condition) {
	cc := c
	g := q.group(group)
	g.clauses = append(g.clauses, clause{cond: &cc})
}

func (q *SQL) AddWhereExpression(group int, snippet string, args ...any) {
	g := q.group(group)
	g.clauses = append(g.clauses, clause{snippet: snippet, args: args})
}

func (q *SQL) AddOrderBy(tableAlias, field, direction string) {
	dir := strings.ToUpper(direction)
	if dir != "DESC" {
		dir = "ASC"
	}
	if tableAlias == "" && strings.EqualFold(field, "random") {
		q.orders = append(q.orders, orderTerm{random: true})
		return
	}
	q.orders = append(q.orders, orderTerm{table: tableAlias, field: field, direction: dir})
}

func (q *SQL) AddGroupBy(field string) {
	for _, g := range q.groupBy {
		if g == field {
			return
		}
	}
	q.groupBy = append(q.groupBy, field)
}

func (q *SQL) SetLimitOffset(limit, offset int) {
	q.limit, q.offset = limit, offset
}

func (q *SQL) SetCountQuery(enabled bool) { q.count = enabled }

// Built returns the last successful Build, or nil.
func (q *SQL) Built() *Built { return q.built }

// Build renders the statement. Unknown table aliases or invalid
// identifiers fail the build.
func (q *SQL) Build() (*Built, error) {
	if len(q.fields) == 0 {
		q.AddField(q.baseTable, q.baseField, "")
	}
	r := &renderer{dialect: q.dialect}
	core, err := q.renderCore(r)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(core)
	if len(q.orders) > 0 {
		terms := make([]string, 0, len(q.orders))
		for _, o := range q.orders {
			if o.random {
				terms = append(terms, q.dialect.Random)
				continue
			}
			col, err := q.column(o.table, o.field)
			if err != nil {
				return nil, err
			}
			terms = append(terms, col+" "+o.direction)
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.limit))
	} else if q.offset > 0 && q.dialect.LimitAll != "" {
		b.WriteString(" " + q.dialect.LimitAll)
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.offset))
	}
	built := &Built{SQL: b.String(), Args: r.args}
	if q.count {
		cr := &renderer{dialect: q.dialect}
		countCore, err := q.renderCore(cr)
		if err != nil {
			return nil, err
		}
		built.CountSQL = "SELECT COUNT(*) FROM (" + countCore + ") count_alias"
		built.CountArgs = cr.args
	}
	q.built = built
	return built, nil
}

type renderer struct {
	dialect Dialect
	args    []any
}

func (r *renderer) bind(v any) string {
	r.args = append(r.args, v)
	return r.dialect.Placeholder(len(r.args))
}

// snippet binds args to the ? markers of s. Markers inside quoted
// literals or identifiers are left alone.
func (r *renderer) snippet(s string, args []any) string {
	var b strings.Builder
	i := 0
	var quoted rune
	for _, ch := range s {
		switch {
		case quoted != 0:
			if ch == quoted {
				quoted = 0
			}
		case ch == '\'' || ch == '"':
			quoted = ch
		case ch == '?' && i < len(args):
			b.WriteString(r.bind(args[i]))
			i++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (q *SQL) renderCore(r *renderer) (string, error) {
	cols := make([]string, 0, len(q.fields))
	for _, f := range q.fields {
		col, err := q.column(f.table, f.field)
		if err != nil {
			return "", err
		}
		if f.fn != "" {
			col = f.fn + "(" + col + ")"
		}
		cols = append(cols, col+" AS "+quote(f.name))
	}
	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(cols, ", "))
	b.WriteString(" FROM " + quote(q.baseTable) + " " + quote(q.baseTable))
	for _, t := range q.tables[1:] {
		j := t.join
		typ := strings.ToUpper(j.Type)
		if typ != "INNER" {
			typ = "LEFT"
		}
		if !identRe.MatchString(j.Table) || !identRe.MatchString(j.LeftField) || !identRe.MatchString(j.Field) {
			return "", fmt.Errorf("%w: join %s", ErrUnknownField, t.alias)
		}
		if _, ok := q.byAlias[j.LeftTable]; !ok {
			return "", fmt.Errorf("%w: join %s references %s", ErrUnknownField, t.alias, j.LeftTable)
		}
		fmt.Fprintf(&b, " %s JOIN %s %s ON %s.%s = %s.%s", typ,
			quote(j.Table), quote(t.alias),
			quote(j.LeftTable), quote(j.LeftField),
			quote(t.alias), quote(j.Field))
	}
	where, err := q.renderWhere(r)
	if err != nil {
		return "", err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if len(q.groupBy) > 0 {
		terms := make([]string, 0, len(q.groupBy))
		for _, g := range q.groupBy {
			col, err := q.reference(g)
			if err != nil {
				return "", err
			}
			terms = append(terms, col)
		}
		b.WriteString(" GROUP BY " + strings.Join(terms, ", "))
	}
	return b.String(), nil
}

// renderWhere ANDs group 0 with the filter groups, which are combined by
// the group operator. Each group combines its own clauses by its operator.
func (q *SQL) renderWhere(r *renderer) (string, error) {
	ids := make([]int, 0, len(q.where))
	for id := range q.where {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var main, filters []string
	for _, id := range ids {
		g := q.where[id]
		if len(g.clauses) == 0 {
			continue
		}
		parts := make([]string, 0, len(g.clauses))
		for _, c := range g.clauses {
			s, err := q.renderClause(r, c)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		sub := "(" + strings.Join(parts, " "+string(g.op)+" ") + ")"
		if id == 0 {
			main = append(main, sub)
		} else {
			filters = append(filters, sub)
		}
	}
	if len(filters) > 0 {
		main = append(main, "("+strings.Join(filters, " "+string(q.groupOp)+" ")+")")
	}
	return strings.Join(main, " AND "), nil
}

func (q *SQL) renderClause(r *renderer, c clause) (string, error) {
	if c.cond == nil {
		return r.snippet(c.snippet, c.args), nil
	}
	col, err := q.reference(c.cond.Field)
	if err != nil {
		return "", err
	}
	op := strings.ToUpper(strings.TrimSpace(c.cond.Operator))
	if op == "" {
		op = "="
	}
	switch op {
	case "=", "<>", "!=", "<", "<=", ">", ">=":
		return col + " " + op + " " + r.bind(c.cond.Value), nil
	case "LIKE", "NOT LIKE":
		return col + " " + op + " " + r.bind(c.cond.Value) + ` ESCAPE '\'`, nil
	case "IS NULL", "IS NOT NULL":
		return col + " " + op, nil
	case "IN", "NOT IN":
		vals := toSlice(c.cond.Value)
		if len(vals) == 0 {
			if op == "IN" {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		ph := make([]string, len(vals))
		for i, v := range vals {
			ph[i] = r.bind(v)
		}
		return col + " " + op + " (" + strings.Join(ph, ", ") + ")", nil
	case "BETWEEN", "NOT BETWEEN":
		vals := toSlice(c.cond.Value)
		if len(vals) != 2 {
			return "", fmt.Errorf("%w: %s needs two values on %s", ErrUnknownField, op, c.cond.Field)
		}
		return col + " " + op + " " + r.bind(vals[0]) + " AND " + r.bind(vals[1]), nil
	}
	return "", fmt.Errorf("unsupported operator %q on %s", c.cond.Operator, c.cond.Field)
}

// reference resolves "alias.column" or a selected column name.
func (q *SQL) reference(ref string) (string, error) {
	if alias, field, ok := strings.Cut(ref, "."); ok {
		return q.column(alias, field)
	}
	if _, ok := q.fieldByName(ref); ok {
		return quote(ref), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownField, ref)
}

func (q *SQL) column(alias, field string) (string, error) {
	if alias == "" {
		return q.reference(field)
	}
	if _, ok := q.byAlias[alias]; !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownField, alias, field)
	}
	if field == "*" {
		return quote(alias) + ".*", nil
	}
	if !identRe.MatchString(field) {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownField, alias, field)
	}
	return quote(alias) + "." + quote(field), nil
}

// Execute runs the count query when requested, then the main query.
func (q *SQL) Execute(ctx context.Context, res *Result) error {
	if q.built == nil {
		return ErrNotBuilt
	}
	if q.built.CountSQL != "" {
		total, err := scanCount(ctx, q.runner, q.built.CountSQL, q.built.CountArgs)
		if err != nil {
			return fmt.Errorf("count query: %w", err)
		}
		res.Total = total
	}
	rows, err := ScanRows(ctx, q.runner, q.built.SQL, q.built.Args)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	for i, row := range rows {
		// rows are keyed by absolute position in the backend
		row.Index = q.offset + i
	}
	res.Rows = rows
	if q.built.CountSQL == "" {
		res.Total = len(rows) + q.offset
	}
	return nil
}

// ScanRows runs stmt and decodes every row into a column map.
func ScanRows(ctx context.Context, runner Runner, stmt string, args []any) ([]*Row, error) {
	rs, err := runner.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out []*Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = vals[i]
		}
		out = append(out, &Row{Values: m})
	}
	return out, rs.Err()
}

func scanCount(ctx context.Context, runner Runner, stmt string, args []any) (int, error) {
	rs, err := runner.QueryContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	defer rs.Close()
	var n int
	if rs.Next() {
		if err := rs.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rs.Err()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%T:%v", a, a)
	}
	return strings.Join(parts, ",")
}
