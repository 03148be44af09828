package source

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// readOnlyAnalyzer verifies that user SQL is a single read statement. The
// primary check parses the statement into an AST; SQL the MySQL-family
// parser cannot handle (dialect quirks of the embedded engine) falls back
// to a textual check.
type readOnlyAnalyzer struct {
	parser *parser.Parser
}

func newReadOnlyAnalyzer() *readOnlyAnalyzer {
	return &readOnlyAnalyzer{parser: parser.New()}
}

// Check returns nil when sql is a single SELECT or WITH statement.
func (a *readOnlyAnalyzer) Check(sql string) error {
	stripped := stripLeadingComments(sql)
	if strings.TrimSpace(stripped) == "" {
		return fmt.Errorf("empty query")
	}

	stmtNodes, _, err := a.parser.Parse(stripped, "", "")
	if err != nil || len(stmtNodes) == 0 {
		return fallbackCheck(stripped)
	}
	if len(stmtNodes) > 1 {
		return fmt.Errorf("only a single statement is allowed, got %d", len(stmtNodes))
	}
	switch stmtNodes[0].(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
		return nil
	}
	return fmt.Errorf("only SELECT or WITH queries are allowed")
}

// stripLeadingComments removes leading block comments and line comments so
// the statement keyword is inspectable.
func stripLeadingComments(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return s
			}
			s = strings.TrimSpace(s[end+2:])
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = strings.TrimSpace(s[nl+1:])
		default:
			return s
		}
	}
}

// fallbackCheck is the textual gate used when the AST parser cannot read
// the dialect: a SELECT/WITH prefix and no second statement behind a
// semicolon.
func fallbackCheck(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT or WITH queries are allowed")
	}
	if hasSecondStatement(sql) {
		return fmt.Errorf("only a single statement is allowed")
	}
	return nil
}

// hasSecondStatement scans for a semicolon outside string literals that is
// followed by anything but whitespace.
func hasSecondStatement(sql string) bool {
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			if strings.TrimSpace(sql[i+1:]) != "" {
				return true
			}
		}
	}
	return false
}

// stripTrailingSemicolon removes a trailing statement terminator so the
// query can be used as a subselect.
func stripTrailingSemicolon(sql string) string {
	return strings.TrimSuffix(strings.TrimSpace(sql), ";")
}
