package assistant

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var forbiddenKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true, "upsert": true,
	"drop": true, "alter": true, "create": true, "truncate": true, "rename": true,
	"grant": true, "revoke": true, "copy": true, "call": true, "execute": true,
	"exec": true, "prepare": true, "deallocate": true, "do": true, "into": true,
	"vacuum": true, "analyze": true, "reindex": true, "cluster": true, "refresh": true,
	"lock": true, "set": true, "reset": true, "discard": true, "load": true,
	"comment": true, "security": true, "notify": true, "listen": true, "unlisten": true,
	"begin": true, "commit": true, "rollback": true, "savepoint": true, "checkpoint": true,
	"import": true,
	"pg_sleep": true, "pg_read_file": true, "pg_read_binary_file": true, "pg_ls_dir": true,
	"pg_stat_file": true, "lo_import": true, "lo_export": true, "dblink": true,
	"dblink_exec": true, "pg_terminate_backend": true, "pg_cancel_backend": true,
	"set_config": true,
}

// Tables holding per-user rows and the columns that scope them.
var scopedTables = map[string][]string{
	"inventory": {"user_id"},
	"cashflow":  {"user_id"},
	"users":     {"id", "user_id"},
}

var scopedTableNames = []string{"cashflow", "inventory", "users"}

// Words that can follow a table reference without being its alias.
var notAliases = map[string]bool{
	"where": true, "join": true, "inner": true, "left": true, "right": true, "full": true,
	"outer": true, "cross": true, "natural": true, "on": true, "using": true, "group": true,
	"order": true, "limit": true, "offset": true, "having": true, "union": true,
	"except": true, "intersect": true, "window": true, "fetch": true, "for": true,
	"lateral": true, "tablesample": true,
}

var (
	wordRe     = regexp.MustCompile(`[a-z_][a-z0-9_$]*`)
	tableRefRe = regexp.MustCompile(`(?:\bfrom\s+|\bjoin\s+|,\s*)(?:only\s+)?(?:[a-z_][a-z0-9_]*\.)?(cashflow|inventory|users)\b`)
	aliasRe    = regexp.MustCompile(`^\s+(?:as\s+)?([a-z_][a-z0-9_]*)`)
	joinEqRe   = regexp.MustCompile(`(?:^|[^a-z0-9_$])([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)\s*=\s*([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)`)
)

// tableRef is one use of a per-user table and the name its columns are
// qualified with in the statement.
type tableRef struct {
	table     string
	qualifier string
}

// ValidateReadOnly rejects anything but a single SELECT (or WITH ... SELECT)
// statement free of write or session keywords. Every reference to a per-user
// table must be filtered on userID, either directly through its alias or
// through an equi-join on scoping columns with a filtered reference. An
// unqualified filter only counts when a single per-user table is referenced.
// Literals and comments are ignored when scanning.
func ValidateReadOnly(query string, userID int64) error {
	skel, err := sqlSkeleton(query)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	skel = strings.TrimSpace(skel)
	skel = strings.TrimSpace(strings.TrimSuffix(skel, ";"))
	if skel == "" {
		return fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}
	if strings.Contains(skel, ";") {
		return fmt.Errorf("%w: more than one statement", ErrUnsafeQuery)
	}

	words := wordRe.FindAllString(skel, -1)
	if len(words) == 0 || (words[0] != "select" && words[0] != "with") {
		return fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeQuery)
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if forbiddenKeywords[w] {
			return fmt.Errorf("%w: keyword %q is not allowed", ErrUnsafeQuery, strings.ToUpper(w))
		}
		seen[w] = true
	}
	return checkUserScope(skel, scopedRefs(skel, seen), userID)
}

// scopedRefs finds the per-user tables in FROM and JOIN clauses. A table
// named anywhere else still counts as a reference under its own name.
func scopedRefs(skel string, seen map[string]bool) []tableRef {
	var refs []tableRef
	found := make(map[string]bool)
	for _, m := range tableRefRe.FindAllStringSubmatchIndex(skel, -1) {
		table, rest := skel[m[2]:m[3]], skel[m[3]:]
		next := strings.TrimLeft(rest, " \t\r\n")
		if strings.HasPrefix(next, ".") || strings.HasPrefix(next, "(") {
			continue
		}
		ref := tableRef{table: table, qualifier: table}
		if a := aliasRe.FindStringSubmatch(rest); a != nil && !notAliases[a[1]] {
			ref.qualifier = a[1]
		}
		refs = append(refs, ref)
		found[table] = true
	}
	for _, table := range scopedTableNames {
		if seen[table] && !found[table] {
			refs = append(refs, tableRef{table: table, qualifier: table})
		}
	}
	return refs
}

func checkUserScope(skel string, refs []tableRef, userID int64) error {
	if len(refs) == 0 {
		return nil
	}
	id := strconv.FormatInt(userID, 10)
	tables := make(map[string]string, len(refs))
	scoped := make(map[string]bool, len(refs))
	for _, r := range refs {
		tables[r.qualifier] = r.table
	}
	for _, r := range refs {
		if hasUserPredicate(skel, r.qualifier, scopedTables[r.table], id, len(refs) == 1) {
			scoped[r.qualifier] = true
		}
	}

	joins := joinEqRe.FindAllStringSubmatch(skel, -1)
	for changed := true; changed; {
		changed = false
		for _, j := range joins {
			if carryScope(tables, scoped, j[1], j[2], j[3], j[4]) || carryScope(tables, scoped, j[3], j[4], j[1], j[2]) {
				changed = true
			}
		}
	}

	for _, r := range refs {
		if !scoped[r.qualifier] {
			return fmt.Errorf("%w: %s (as %s) is not filtered by %s = %d",
				ErrUnsafeQuery, r.table, r.qualifier, scopedTables[r.table][0], userID)
		}
	}
	return nil
}

// carryScope marks to as scoped when from is scoped and the two are joined
// on scoping columns of both tables.
func carryScope(tables map[string]string, scoped map[string]bool, from, fromCol, to, toCol string) bool {
	if !scoped[from] || scoped[to] {
		return false
	}
	fromTable, ok := tables[from]
	if !ok || !slices.Contains(scopedTables[fromTable], fromCol) {
		return false
	}
	toTable, ok := tables[to]
	if !ok || !slices.Contains(scopedTables[toTable], toCol) {
		return false
	}
	scoped[to] = true
	return true
}

func hasUserPredicate(skel, qualifier string, columns []string, id string, allowBare bool) bool {
	q := `(?:[a-z_][a-z0-9_]*\.)?` + regexp.QuoteMeta(qualifier) + `\.`
	if allowBare {
		q = `(?:` + q + `)?`
	}
	for _, col := range columns {
		c := q + col
		pat := `(?:^|[^a-z0-9_.])` + c + `\s*=\s*` + id + `(?:[^0-9.]|$)` +
			`|(?:^|[^a-z0-9_.])` + id + `\s*=\s*` + c + `(?:[^a-z0-9_]|$)` +
			`|(?:^|[^a-z0-9_.])` + c + `\s+in\s*\(\s*` + id + `\s*\)`
		if regexp.MustCompile(pat).MatchString(skel) {
			return true
		}
	}
	return false
}

var errUnterminated = errors.New("unterminated literal or comment")

// sqlSkeleton lowercases query and blanks out string literals and comments.
// Quoted identifiers are kept as bare identifiers.
func sqlSkeleton(query string) (string, error) {
	src := []byte(query)
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'':
			escapes := i > 0 && (src[i-1] == 'e' || src[i-1] == 'E') && (i == 1 || !isIdentByte(src[i-2]))
			end, ok := skipQuoted(src, i, '\'', escapes)
			if !ok {
				return "", errUnterminated
			}
			b.WriteString("''")
			i = end
		case c == '"':
			end, ok := skipQuoted(src, i, '"', false)
			if !ok {
				return "", errUnterminated
			}
			ident := strings.ReplaceAll(string(src[i+1:end-1]), `""`, `"`)
			for _, r := range strings.ToLower(ident) {
				if r < 128 && isIdentByte(byte(r)) {
					b.WriteRune(r)
				} else {
					b.WriteByte('_')
				}
			}
			i = end
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			depth := 0
			for i < len(src) {
				if src[i] == '/' && i+1 < len(src) && src[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if src[i] == '*' && i+1 < len(src) && src[i+1] == '/' {
					depth--
					i += 2
					if depth == 0 {
						break
					}
					continue
				}
				i++
			}
			if depth != 0 {
				return "", errUnterminated
			}
			b.WriteByte(' ')
		case c == '$' && (i == 0 || !isIdentByte(src[i-1])):
			tag, ok := dollarTag(src, i)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			rest := string(src[i+len(tag):])
			end := strings.Index(rest, tag)
			if end < 0 {
				return "", errUnterminated
			}
			b.WriteString("''")
			i += 2*len(tag) + end
		default:
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// skipQuoted returns the index just past the closing quote of the literal
// starting at src[start]. A doubled quote is an escaped quote.
func skipQuoted(src []byte, start int, quote byte, backslash bool) (int, bool) {
	for i := start + 1; i < len(src); i++ {
		switch {
		case backslash && src[i] == '\\':
			i++
		case src[i] == quote:
			if i+1 < len(src) && src[i+1] == quote {
				i++
				continue
			}
			return i + 1, true
		}
	}
	return 0, false
}

// dollarTag reports the $tag$ opening a dollar-quoted string at src[i].
// Positional parameters like $1 are not tags.
func dollarTag(src []byte, i int) (string, bool) {
	j := i + 1
	if j < len(src) && src[j] >= '0' && src[j] <= '9' {
		return "", false
	}
	for j < len(src) && isIdentByte(src[j]) {
		j++
	}
	if j < len(src) && src[j] == '$' {
		return string(src[i : j+1]), true
	}
	return "", false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
