package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/malzahar-db/sgbd/rbfm"
	"github.com/malzahar-db/sgbd/rm"
)

var errBadCommand = errors.New("sgbdctl: unrecognised command")

// tokenize splits a line into words, keeping quoted strings as single
// tokens (quotes included) and '(', ')', ',' as their own tokens.
func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	inQuote := byte(0)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			cur.WriteByte(c)
			if c == inQuote {
				inQuote = 0
				flush()
			}
		case c == '\'' || c == '"':
			flush()
			inQuote = c
			cur.WriteByte(c)
		case c == '(' || c == ')' || c == ',':
			flush()
			toks = append(toks, string(c))
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks
}

func unquote(tok string) string {
	if len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0] {
		return tok[1 : len(tok)-1]
	}
	return tok
}

func isQuoted(tok string) bool {
	return len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"')
}

// splitTopLevelCommas splits tokens on "," that occur at paren depth 0.
func splitTopLevelCommas(tokens []string) [][]string {
	var groups [][]string
	var cur []string
	depth := 0
	for _, tok := range tokens {
		switch tok {
		case "(":
			depth++
			cur = append(cur, tok)
		case ")":
			depth--
			cur = append(cur, tok)
		case ",":
			if depth == 0 {
				groups = append(groups, cur)
				cur = nil
				continue
			}
			cur = append(cur, tok)
		default:
			cur = append(cur, tok)
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func parseType(tokens []string) (rbfm.AttrType, uint32, error) {
	if len(tokens) == 0 {
		return 0, 0, fmt.Errorf("%w: missing column type", errBadCommand)
	}
	switch strings.ToUpper(tokens[0]) {
	case "INT", "INTEGER":
		return rbfm.TypeInt, 0, nil
	case "REAL", "FLOAT":
		return rbfm.TypeReal, 0, nil
	case "VARCHAR":
		if len(tokens) >= 4 && tokens[1] == "(" && tokens[3] == ")" {
			n, err := strconv.Atoi(tokens[2])
			if err != nil {
				return 0, 0, fmt.Errorf("%w: bad varchar length", errBadCommand)
			}
			return rbfm.TypeVarChar, uint32(n), nil
		}
		return rbfm.TypeVarChar, 255, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown type %s", errBadCommand, tokens[0])
	}
}

func parseColumnList(tokens []string) ([]rbfm.Attribute, error) {
	if len(tokens) < 2 || tokens[0] != "(" || tokens[len(tokens)-1] != ")" {
		return nil, fmt.Errorf("%w: expected (col type, ...)", errBadCommand)
	}
	inner := tokens[1 : len(tokens)-1]
	var attrs []rbfm.Attribute
	for _, seg := range splitTopLevelCommas(inner) {
		if len(seg) < 2 {
			return nil, fmt.Errorf("%w: malformed column definition", errBadCommand)
		}
		t, maxLen, err := parseType(seg[1:])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, rbfm.Attribute{Name: seg[0], Type: t, MaxLength: maxLen})
	}
	return attrs, nil
}

func encodeLiteral(attr rbfm.Attribute, tok string) ([]byte, error) {
	switch attr.Type {
	case rbfm.TypeInt:
		v, err := strconv.Atoi(unquote(tok))
		if err != nil {
			return nil, fmt.Errorf("%w: bad int literal %s", errBadCommand, tok)
		}
		return rbfm.EncodeInt(int32(v)), nil
	case rbfm.TypeReal:
		v, err := strconv.ParseFloat(unquote(tok), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad real literal %s", errBadCommand, tok)
		}
		return rbfm.EncodeReal(float32(v)), nil
	default:
		return rbfm.EncodeVarChar(unquote(tok)), nil
	}
}

func compOpFromToken(tok string) rbfm.CompOp {
	switch tok {
	case "=", "==":
		return rbfm.EQ
	case "<":
		return rbfm.LT
	case ">":
		return rbfm.GT
	case "<=":
		return rbfm.LE
	case ">=":
		return rbfm.GE
	case "!=", "<>":
		return rbfm.NE
	default:
		return rbfm.NoOp
	}
}

// execute dispatches one line to its handler. Keyword matching is on
// the first one or two words only — this is deliberately not a SQL
// grammar (spec.md §1's Non-goals exclude a parser from the core).
func execute(e *rm.Engine, line string) (string, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return "", nil
	}
	verb := strings.ToUpper(toks[0])

	switch {
	case verb == "CREATE" && len(toks) > 1 && strings.ToUpper(toks[1]) == "TABLE":
		return "", execCreateTable(e, toks[2:])
	case verb == "CREATE" && len(toks) > 1 && strings.ToUpper(toks[1]) == "INDEX":
		return "", execCreateIndex(e, toks[2:])
	case verb == "DROP" && len(toks) > 1 && strings.ToUpper(toks[1]) == "INDEX":
		return "", execDropIndex(e, toks[2:])
	case verb == "INSERT":
		return "", execInsert(e, toks[1:])
	case verb == "SELECT":
		return execSelect(e, toks[1:])
	case verb == "DELETE":
		return "", execDelete(e, toks[1:])
	case verb == "UPDATE":
		return "", execUpdate(e, toks[1:])
	case verb == "DESCRIBE" && len(toks) > 1 && strings.ToUpper(toks[1]) == "TABLES":
		return e.DescribeAllTables(), nil
	case verb == "DESCRIBE" && len(toks) > 1 && strings.ToUpper(toks[1]) == "TABLE":
		if len(toks) < 3 {
			return "", fmt.Errorf("%w: DESCRIBE TABLE needs a name", errBadCommand)
		}
		return e.DescribeTable(toks[2])
	default:
		return "", fmt.Errorf("%w: %s", errBadCommand, toks[0])
	}
}

func execCreateTable(e *rm.Engine, toks []string) error {
	if len(toks) < 2 {
		return fmt.Errorf("%w: CREATE TABLE needs a name and columns", errBadCommand)
	}
	name := toks[0]
	cols, err := parseColumnList(toks[1:])
	if err != nil {
		return err
	}
	return e.CreateTable(name, cols)
}

func execCreateIndex(e *rm.Engine, toks []string) error {
	// ON table ( column )
	if len(toks) < 5 || strings.ToUpper(toks[0]) != "ON" || toks[2] != "(" || toks[4] != ")" {
		return fmt.Errorf("%w: expected CREATE INDEX ON table(column)", errBadCommand)
	}
	return e.CreateIndex(toks[1], toks[3])
}

func execDropIndex(e *rm.Engine, toks []string) error {
	if len(toks) < 5 || strings.ToUpper(toks[0]) != "ON" || toks[2] != "(" || toks[4] != ")" {
		return fmt.Errorf("%w: expected DROP INDEX ON table(column)", errBadCommand)
	}
	return e.DestroyIndex(toks[1], toks[3])
}

func execInsert(e *rm.Engine, toks []string) error {
	// INTO table VALUES ( v1, v2, ... )
	if len(toks) < 2 || strings.ToUpper(toks[0]) != "INTO" {
		return fmt.Errorf("%w: expected INSERT INTO table VALUES (...)", errBadCommand)
	}
	table := toks[1]
	rest := toks[2:]
	if len(rest) < 1 || strings.ToUpper(rest[0]) != "VALUES" {
		return fmt.Errorf("%w: expected VALUES (...)", errBadCommand)
	}
	vtoks := rest[1:]
	if len(vtoks) < 2 || vtoks[0] != "(" || vtoks[len(vtoks)-1] != ")" {
		return fmt.Errorf("%w: expected (v1, v2, ...)", errBadCommand)
	}
	groups := splitTopLevelCommas(vtoks[1 : len(vtoks)-1])

	attrs, err := e.GetAttributes(table)
	if err != nil {
		return err
	}
	if len(groups) != len(attrs) {
		return fmt.Errorf("%w: %s has %d columns, got %d values", errBadCommand, table, len(attrs), len(groups))
	}
	var data []byte
	for i, g := range groups {
		if len(g) != 1 {
			return fmt.Errorf("%w: malformed value", errBadCommand)
		}
		raw, err := encodeLiteral(attrs[i], g[0])
		if err != nil {
			return err
		}
		data = append(data, raw...)
	}
	_, err = e.InsertTuple(table, data)
	return err
}

type whereClause struct {
	attr  string
	op    rbfm.CompOp
	value string
}

func parseWhere(toks []string) (*whereClause, error) {
	if len(toks) == 0 {
		return nil, nil
	}
	if strings.ToUpper(toks[0]) != "WHERE" {
		return nil, fmt.Errorf("%w: expected WHERE", errBadCommand)
	}
	if len(toks) != 4 {
		return nil, fmt.Errorf("%w: expected WHERE col OP value", errBadCommand)
	}
	op := compOpFromToken(toks[2])
	if op == rbfm.NoOp {
		return nil, fmt.Errorf("%w: unknown operator %s", errBadCommand, toks[2])
	}
	return &whereClause{attr: toks[1], op: op, value: toks[3]}, nil
}

func execSelect(e *rm.Engine, toks []string) (string, error) {
	fromIdx := -1
	for i, t := range toks {
		if strings.ToUpper(t) == "FROM" {
			fromIdx = i
			break
		}
	}
	if fromIdx < 0 || fromIdx+1 >= len(toks) {
		return "", fmt.Errorf("%w: expected SELECT ... FROM table", errBadCommand)
	}
	projToks := toks[:fromIdx]
	table := toks[fromIdx+1]
	rest := toks[fromIdx+2:]

	attrs, err := e.GetAttributes(table)
	if err != nil {
		return "", err
	}
	var projNames []string
	if len(projToks) == 1 && projToks[0] == "*" {
		for _, a := range attrs {
			projNames = append(projNames, a.Name)
		}
	} else {
		for _, g := range splitTopLevelCommas(projToks) {
			if len(g) != 1 {
				return "", fmt.Errorf("%w: malformed projection", errBadCommand)
			}
			projNames = append(projNames, g[0])
		}
	}

	where, err := parseWhere(rest)
	if err != nil {
		return "", err
	}
	condAttr, op, litValue := "", rbfm.NoOp, []byte(nil)
	if where != nil {
		condAttr, op = where.attr, where.op
		for _, a := range attrs {
			if a.Name == where.attr {
				litValue, err = encodeLiteral(a, where.value)
				if err != nil {
					return "", err
				}
			}
		}
	}

	it, err := e.Scan(table, condAttr, op, litValue, projNames)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		_, proj, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return "", err
		}
		line, err := rbfm.PrintRecord(projAttrs(attrs, projNames), proj)
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func projAttrs(all []rbfm.Attribute, names []string) []rbfm.Attribute {
	out := make([]rbfm.Attribute, 0, len(names))
	for _, n := range names {
		for _, a := range all {
			if a.Name == n {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func execDelete(e *rm.Engine, toks []string) error {
	if len(toks) < 2 || strings.ToUpper(toks[0]) != "FROM" {
		return fmt.Errorf("%w: expected DELETE FROM table WHERE ...", errBadCommand)
	}
	table := toks[1]
	where, err := parseWhere(toks[2:])
	if err != nil {
		return err
	}
	attrs, err := e.GetAttributes(table)
	if err != nil {
		return err
	}
	condAttr, op, value := "", rbfm.NoOp, []byte(nil)
	if where != nil {
		condAttr, op = where.attr, where.op
		for _, a := range attrs {
			if a.Name == where.attr {
				value, err = encodeLiteral(a, where.value)
				if err != nil {
					return err
				}
			}
		}
	}
	it, err := e.Scan(table, condAttr, op, value, attrNames(attrs))
	if err != nil {
		return err
	}
	var rids []rbfm.RID
	for {
		rid, _, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return err
		}
		rids = append(rids, rid)
	}
	for _, rid := range rids {
		if err := e.DeleteTuple(table, rid); err != nil {
			return err
		}
	}
	return nil
}

func execUpdate(e *rm.Engine, toks []string) error {
	// table SET col = value WHERE col2 = value2
	if len(toks) < 5 || strings.ToUpper(toks[1]) != "SET" {
		return fmt.Errorf("%w: expected UPDATE table SET col = value [WHERE ...]", errBadCommand)
	}
	table := toks[0]
	if toks[3] != "=" {
		return fmt.Errorf("%w: expected SET col = value", errBadCommand)
	}
	setAttr, setValTok := toks[2], toks[4]

	whereIdx := -1
	for i := 5; i < len(toks); i++ {
		if strings.ToUpper(toks[i]) == "WHERE" {
			whereIdx = i
			break
		}
	}
	var where *whereClause
	var err error
	if whereIdx >= 0 {
		where, err = parseWhere(toks[whereIdx:])
		if err != nil {
			return err
		}
	}

	attrs, err := e.GetAttributes(table)
	if err != nil {
		return err
	}
	setPos := -1
	for i, a := range attrs {
		if a.Name == setAttr {
			setPos = i
		}
	}
	if setPos < 0 {
		return fmt.Errorf("%w: unknown column %s", errBadCommand, setAttr)
	}
	newField, err := encodeLiteral(attrs[setPos], setValTok)
	if err != nil {
		return err
	}

	condAttr, op, value := "", rbfm.NoOp, []byte(nil)
	if where != nil {
		condAttr, op = where.attr, where.op
		for _, a := range attrs {
			if a.Name == where.attr {
				value, err = encodeLiteral(a, where.value)
				if err != nil {
					return err
				}
			}
		}
	}

	it, err := e.Scan(table, condAttr, op, value, attrNames(attrs))
	if err != nil {
		return err
	}
	type pending struct {
		rid  rbfm.RID
		data []byte
	}
	var updates []pending
	for {
		rid, proj, err := it.Next()
		if errors.Is(err, rbfm.ErrScanEOF) {
			break
		}
		if err != nil {
			return err
		}
		newData, err := replaceField(attrs, proj, setPos, newField)
		if err != nil {
			return err
		}
		updates = append(updates, pending{rid: rid, data: newData})
	}
	for _, u := range updates {
		if err := e.UpdateTuple(table, u.data, u.rid); err != nil {
			return err
		}
	}
	return nil
}

func attrNames(attrs []rbfm.Attribute) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}

// replaceField rebuilds a full external tuple with field setPos replaced
// by newField, given the tuple's full-projection bytes in attrs order.
func replaceField(attrs []rbfm.Attribute, data []byte, setPos int, newField []byte) ([]byte, error) {
	var out []byte
	off := 0
	for i, a := range attrs {
		var l int
		switch a.Type {
		case rbfm.TypeInt, rbfm.TypeReal:
			l = 4
		default:
			n := int(uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24)
			l = 4 + n
		}
		if i == setPos {
			out = append(out, newField...)
		} else {
			out = append(out, data[off:off+l]...)
		}
		off += l
	}
	return out, nil
}
