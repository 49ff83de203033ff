package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minKeywordRunes = 3

var wordSplit = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_]+`)

var stopwords = map[string]bool{
	"là": true, "của": true, "và": true, "thì": true, "có": true, "được": true,
	"trong": true, "cho": true, "các": true, "một": true, "này": true, "đó": true,
	"như": true, "với": true, "để": true, "hay": true, "bao": true, "nhiêu": true,
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"làm": true, "thế": true, "nào": true, "sao": true, "gì": true, "ai": true,
	"đâu": true, "khi": true, "bị": true, "lỗi": true,
}

type termMapping struct {
	key      string
	variants []string
}

// domainTerms maps Vietnamese and English domain words to the identifiers
// they usually appear as in the codebase.
var domainTerms = []termMapping{
	{"sinh viên", []string{"student", "students", "sinh_vien", "sinhvien"}},
	{"sinhvien", []string{"student", "students", "sinh_vien"}},
	{"giáo viên", []string{"teacher", "teachers", "giao_vien", "giaovien"}},
	{"giaovien", []string{"teacher", "teachers", "giao_vien"}},
	{"lớp", []string{"class", "classes", "lop", "classroom"}},
	{"khóa học", []string{"course", "courses", "khoa_hoc"}},
	{"điểm", []string{"grade", "grades", "score", "diem"}},
	{"đăng nhập", []string{"login", "auth", "authenticate", "account"}},
	{"xuất", []string{"export", "excel", "pdf"}},
	{"thống kê", []string{"statistics", "dashboard", "report", "thong_ke"}},
	{"phân quyền", []string{"authorization", "role", "permission"}},
	{"api", []string{"api", "controller", "endpoint", "webapi"}},
	{"database", []string{"database", "sql", "dbcontext", "entity"}},
	{"frontend", []string{"angular", "component", "typescript", "html"}},
	{"validation", []string{"validate", "validation", "validator", "error"}},
}

// Keywords lower-cases question, splits it into words and drops stopwords
// and words shorter than three runes. Order of first appearance is kept.
func Keywords(question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(question), -1) {
		if utf8.RuneCountInString(w) < minKeywordRunes || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Expand appends the domain variants of every keyword that overlaps a
// dictionary key in either direction, deduplicated.
func Expand(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, w := range keywords {
		add(w)
	}
	for _, w := range keywords {
		for _, m := range domainTerms {
			if strings.Contains(m.key, w) || strings.Contains(w, m.key) {
				for _, v := range m.variants {
					add(v)
				}
			}
		}
	}
	return out
}

// SearchTerms is Expand(Keywords(question)).
func SearchTerms(question string) []string {
	return Expand(Keywords(question))
}
