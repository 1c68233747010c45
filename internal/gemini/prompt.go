package gemini

// --- Paper analysis prompts ---

const SystemPrompt = "You are an expert at analyzing academic papers. You extract metadata and write faithful structured summaries. Accuracy and information preservation are of utmost importance."

const UserPromptTemplate = `Analyze the following paper text and return ONLY a JSON object with this structure (no additional text or explanation):
{
    "title": "Full title of the paper",
    "authors": "Author 1, Author 2, ...",
    "journal": "Journal or conference name",
    "year": 2024,
    "background": "The problem the paper addresses and why it matters",
    "methods": "The approach and methodology used",
    "results": "The main quantitative and qualitative findings",
    "discussion": "How the authors interpret the findings",
    "limitations": "Limitations the paper acknowledges or that are apparent",
    "conclusions": "The paper's conclusions and implications",
    "strengths": "What the paper does particularly well"
}

Every field must be present. If a field cannot be found, use "Not found" for strings and 0 for the year.

Paper text:
%s`
