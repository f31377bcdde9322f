package ai

// promptVersion is mixed into every cache key; bumping it busts the
// response cache for all prompts below without needing a schema change.
const promptVersion = "v1"

// analyzePrompt asks for the UnifiedAnalysis JSON object in one call,
// generalizing the teacher's three-task (summary+two-translation) prompt
// in internal/gemini/gemini.go into a single structured-analysis
// contract: title optimization, categorization with confidence, a
// Russian-default summary, and an ad verdict in one round trip.
const analyzePrompt = `Проанализируй статью и верни СТРОГО валидный JSON-объект (без markdown, без пояснений) со следующими полями:

{
  "optimized_title": "<улучшенный заголовок статьи>",
  "categories": [{"name": "<метка категории>", "confidence": <0..1>}],
  "summary": "<краткое содержание статьи на русском языке, 2-6 предложений>",
  "is_advertisement": <true|false>,
  "ad_confidence": <0..1>,
  "ad_type": "<none|sponsored_content|product_placement|affiliate|native_ad>",
  "ad_reasoning": "<краткое обоснование вердикта о рекламе>",
  "ad_markers": ["<строка-маркер>", "..."],
  "publication_date": "<RFC3339 дата публикации, если упомянута в тексте, иначе пустая строка>"
}

ЗАГОЛОВОК: %s

ТЕКСТ: %s

Верни только JSON-объект, ничего больше.`

// selectorPrompt asks for a single CSS selector likely to hold the
// article body, used by C3 strategy 6.
const selectorPrompt = `Дан сжатый DOM страницы с сайта %s. Определи ОДИН CSS-селектор, который выбирает основной текст статьи (параграфы тела статьи), без навигации и рекламы.

DOM:
%s

Ответь строго одним CSS-селектором, без пояснений.`

// categorySummaryPrompt asks for a short digest paragraph summarizing a
// category's articles for the day, used to build DailySummary rows.
const categorySummaryPrompt = `Составь краткий дайджест (3-5 предложений, на русском языке) по категории "%s" на основе следующих заголовков и кратких содержаний статей за день:

%s

Дайджест должен обобщать главные темы дня в этой категории, не перечисляя статьи построчно.`
