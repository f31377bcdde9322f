package extractor

// rankedSelectors is strategy 4's prioritized CSS selector list: schema.org
// markup first, then HTML5 semantic containers, then CMS class-name
// conventions, then the most generic containers. Seeded from the teacher's
// per-site selector tables (dr.dk/ekstrabladet.dk/tv2.dk/bt.dk) generalized
// into one ranked, data-driven list instead of a hostname switch, plus the
// CMS class patterns from original_source's custom_parsers.py.
var rankedSelectors = []string{
	// schema.org / microdata
	"[itemprop=articleBody]",
	"[itemtype*=Article] [itemprop=text]",
	// HTML5 semantic
	"article .dre-article-body p",
	"article .article-body p",
	"article p",
	// CMS class-name conventions (teacher sites + custom_parsers.py)
	".article-body p",
	".article-content p",
	".article__text p",
	".article-text p",
	".entry-content p",
	".post-content p",
	".prose p",
	".body-text p",
	".content p",
	// generic containers
	"main p",
	"#content p",
	".text p",
}

// minParagraphLen mirrors the teacher's per-selector length gate: a
// paragraph shorter than this is treated as boilerplate/navigation noise.
const minParagraphLen = 10

// minParagraphsForGenericSelector is the teacher's "3 paragraphs is enough"
// early-exit threshold for the least specific selectors at the tail of the
// ranked list.
const minParagraphsForGenericSelector = 3
