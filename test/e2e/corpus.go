// Package e2e provides end-to-end tests that build a catalog from a generated manual and run
// lookups and queries against it.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/manualbook/internal/metadata"
)

// E2EArticle is one generated manual section.
type E2EArticle struct {
	ID        string
	Title     string
	Intent    string
	Category  string
	Level     int
	ParentID  string
	Signature string // a word that appears in this article only
	Code      string
	Content   string
}

// FindTestCase defines a keyword lookup and the article that must rank first.
type FindTestCase struct {
	Query       string
	ExpectedID  string
	Description string
}

// Corpus holds generated articles, the manual they render to and the lookup test cases.
type Corpus struct {
	Articles     []E2EArticle
	TestCases    []FindTestCase
	TotalDocs    int
	TotalQueries int
}

type chapter struct {
	title     string
	signature string
	category  string
	sections  [4][2]string // title, signature
	intents   [4]string
}

var chapters = []chapter{
	{"Workspace Layout", "dockable", metadata.CategoryApplication,
		[4][2]string{{"Panel Docking", "snapping"}, {"Saving Layouts", "snapshot"}, {"Color Themes", "palette"}, {"Keyboard Shortcuts", "hotkey"}},
		[4]string{metadata.IntentDo, metadata.IntentDo, metadata.IntentLearn, metadata.IntentLearn}},
	{"Quotes", "ticker", metadata.CategoryData,
		[4][2]string{{"Watchlists", "watchlist"}, {"Quote Columns", "spread"}, {"Price Alerts", "threshold"}, {"Market Depth", "orderbook"}},
		[4]string{metadata.IntentDo, metadata.IntentLearn, metadata.IntentDo, metadata.IntentLearn}},
	{"Charts", "candlestick", metadata.CategoryApplication,
		[4][2]string{{"Chart Intervals", "timeframe"}, {"Drawing Tools", "trendline"}, {"Indicators", "oscillator"}, {"Chart Templates", "template"}},
		[4]string{metadata.IntentDo, metadata.IntentDo, metadata.IntentLearn, metadata.IntentDo}},
	{"Orders", "brokerage", metadata.CategoryApplication,
		[4][2]string{{"Placing Orders", "limit"}, {"Cancelling Orders", "revoke"}, {"Order History", "ledger"}, {"Trade Confirmations", "receipt"}},
		[4]string{metadata.IntentDo, metadata.IntentDo, metadata.IntentLearn, metadata.IntentLearn}},
	{"Portfolio", "holdings", metadata.CategoryApplication,
		[4][2]string{{"Positions", "exposure"}, {"Profit and Loss", "unrealized"}, {"Dividends", "dividend"}, {"Exporting Reports", "spreadsheet"}},
		[4]string{metadata.IntentLearn, metadata.IntentLearn, metadata.IntentLearn, metadata.IntentDo}},
	{"Data Feeds", "datafeed", metadata.CategoryData,
		[4][2]string{{"Connecting a Feed", "handshake"}, {"Feed Latency", "latency"}, {"Historical Data", "backfill"}, {"Symbol Mapping", "mnemonic"}},
		[4]string{metadata.IntentDo, metadata.IntentTrouble, metadata.IntentDo, metadata.IntentLearn}},
	{"Accounts", "credentials", metadata.CategoryApplication,
		[4][2]string{{"Login Problems", "lockout"}, {"Two-Factor Authentication", "authenticator"}, {"Password Reset", "passphrase"}, {"Session Timeouts", "inactivity"}},
		[4]string{metadata.IntentTrouble, metadata.IntentDo, metadata.IntentDo, metadata.IntentTrouble}},
	{"Troubleshooting", "diagnostics", metadata.CategoryApplication,
		[4][2]string{{"Application Freezes", "unresponsive"}, {"Missing Quotes", "stale"}, {"Crash Reports", "minidump"}, {"Log Files", "verbosity"}},
		[4]string{metadata.IntentTrouble, metadata.IntentTrouble, metadata.IntentTrouble, metadata.IntentTrouble}},
}

// BuildCorpus returns a manual of 8 chapters with 4 sections each. Every article carries a
// unique signature word and product code so lookups can assert the right article comes back.
func BuildCorpus() *Corpus {
	articles := buildArticles(len(chapters))
	cases := buildFindTestCases(articles)
	return &Corpus{
		Articles:     articles,
		TestCases:    cases,
		TotalDocs:    len(articles),
		TotalQueries: len(cases),
	}
}

func buildArticles(nChapters int) []E2EArticle {
	var out []E2EArticle
	n := 0
	add := func(title, signature, intent, category string, level int, parent string) string {
		n++
		a := E2EArticle{
			ID:        slug(title),
			Title:     title,
			Intent:    intent,
			Category:  category,
			Level:     level,
			ParentID:  parent,
			Signature: signature,
			Code:      fmt.Sprintf("K%03d", n),
			Content:   content(title, signature),
		}
		out = append(out, a)
		return a.ID
	}
	for i := 0; i < nChapters && i < len(chapters); i++ {
		ch := chapters[i]
		parent := add(ch.title, ch.signature, metadata.IntentLearn, ch.category, 2, "")
		for j, sec := range ch.sections {
			add(sec[0], sec[1], ch.intents[j], ch.category, 3, parent)
		}
	}
	return out
}

func content(title, signature string) string {
	return fmt.Sprintf("This section covers %s in the trading terminal. The %s option is available from the main menu and applies to every open window.\n\nChanges to %s take effect immediately.",
		strings.ToLower(title), signature, signature)
}

func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func buildFindTestCases(articles []E2EArticle) []FindTestCase {
	cases := make([]FindTestCase, 0, 2*len(articles))
	for _, a := range articles {
		cases = append(cases,
			FindTestCase{Query: a.Signature, ExpectedID: a.ID, Description: "signature_" + a.ID},
			FindTestCase{Query: a.Code, ExpectedID: a.ID, Description: "code_" + a.ID},
		)
	}
	return cases
}

// Markdown renders the articles as one manual with a METADATA block above each heading.
func (c *Corpus) Markdown() string {
	return render(c.Articles)
}

// MarkdownWithout renders the manual minus the chapter rooted at id and its sections.
func (c *Corpus) MarkdownWithout(id string) string {
	kept := make([]E2EArticle, 0, len(c.Articles))
	for _, a := range c.Articles {
		if a.ID == id || a.ParentID == id {
			continue
		}
		kept = append(kept, a)
	}
	return render(kept)
}

func render(articles []E2EArticle) string {
	var b strings.Builder
	b.WriteString("# Trading Terminal Manual\n\n")
	for _, a := range articles {
		fmt.Fprintf(&b, "<!--METADATA\nintent: %s\nid: %s\ncategory: %s\ncodes: %s\n-->\n", a.Intent, a.ID, a.Category, a.Code)
		fmt.Fprintf(&b, "%s %s\n\n%s\n\n", strings.Repeat("#", a.Level), a.Title, a.Content)
	}
	return b.String()
}
