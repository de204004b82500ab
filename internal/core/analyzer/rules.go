package analyzer

import "github.com/kirillkom/fund-facts-assistant/internal/core/domain"

// Rule maps a pattern to a hint value. Tables are evaluated in declaration order
// and the first matching rule wins; there is no other priority.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Value   string `yaml:"value"`
}

// DefaultEntityRules covers the scheme catalog of the reference corpus.
var DefaultEntityRules = []Rule{
	{Name: "large_cap", Pattern: `(?i)\blarge[\s-]?cap\b|\bbluechip\b`, Value: "fund-a-large-cap"},
	{Name: "mid_cap", Pattern: `(?i)\bmid[\s-]?cap\b`, Value: "fund-a-mid-cap"},
	{Name: "small_cap", Pattern: `(?i)\bsmall[\s-]?cap\b`, Value: "fund-a-small-cap"},
	{Name: "flexi_cap", Pattern: `(?i)\bflexi[\s-]?cap\b|\bmulti[\s-]?cap\b`, Value: "fund-a-flexi-cap"},
	{Name: "elss", Pattern: `(?i)\belss\b|\btax[\s-]?saver\b`, Value: "fund-a-elss"},
}

// DefaultCategoryRules overlap on purpose in a few places ("stamp duty" is both a tax and a
// fee trigger, "elss" is both a scheme and a tax trigger). Order decides; tests pin it.
var DefaultCategoryRules = []Rule{
	{Name: "exit_load", Pattern: `(?i)\bexit[\s-]?loads?\b|\bredemption charges?\b`, Value: domain.CategoryExitLoad},
	{Name: "tax", Pattern: `(?i)\btax(es|ation)?\b|\bcapital gains?\b|\bstamp duty\b|\b80c\b|\belss\b|\b[ls]tcg\b`, Value: domain.CategoryTax},
	{Name: "fees", Pattern: `(?i)\bexpense ratio\b|\bter\b|\bfees?\b|\bcharges?\b|\bstamp duty\b|\bcosts?\b`, Value: domain.CategoryFees},
	{Name: "nav", Pattern: `(?i)\bnav\b|\bnet asset value\b`, Value: domain.CategoryNAV},
	{Name: "performance", Pattern: `(?i)\breturns?\b|\bperformance\b|\bcagr\b|\bbenchmark\b`, Value: domain.CategoryPerformance},
	{Name: "holdings", Pattern: `(?i)\bholdings?\b|\bportfolio\b|\btop \d+ stocks\b|\bsector allocation\b`, Value: domain.CategoryHoldings},
	{Name: "risk", Pattern: `(?i)\brisk(o-?meter)?\b|\bvolatility\b|\bstandard deviation\b|\bsharpe\b|\bbeta\b`, Value: domain.CategoryRisk},
	{Name: "fund_manager", Pattern: `(?i)\bfund managers?\b|\bmanaged by\b|\bwho manages\b`, Value: domain.CategoryFundManager},
	{Name: "downloads", Pattern: `(?i)\bfactsheet\b|\bdownloads?\b|\bsid\b|\bkim\b|\bpdf\b|\bstatements?\b`, Value: domain.CategoryDownloads},
	{Name: "contact", Pattern: `(?i)\bcontact\b|\bphone\b|\bemail\b|\bcustomer care\b|\bhelpline\b|\baddress\b`, Value: domain.CategoryContact},
	{Name: "regulatory", Pattern: `(?i)\bsebi\b|\bamfi\b|\bkyc\b|\bregulat(ory|ion|ions)\b`, Value: domain.CategoryRegulatory},
	{Name: "faq", Pattern: `(?i)\bhow (do|can) i\b|\bminimum (sip|investment)\b|\bsip\b|\bfaq\b|\block[\s-]?in\b`, Value: domain.CategoryFAQ},
	{Name: "overview", Pattern: `(?i)\bobjective\b|\boverview\b|\binception\b|\baum\b|\bwhat is\b`, Value: domain.CategoryOverview},
}
