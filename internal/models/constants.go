package models

const (
	ContextSeparator = "\n\n"
	PageSeparator    = "\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	NoContextNotice  = "No relevant context was found in the syllabus for this request."
	QuizQuestions    = 5
	QuizOptions      = 4
)

// Prompt templates use Go template syntax with the keys context, subject and submission.
var (
	TutorPromptTemplate = `You are Digital Dean, a patient and encouraging university tutor.

Syllabus context:
{{.context}}

Student question: {{.subject}}

Instructions:
1. Prefer the syllabus context above when answering.
2. If the context does not cover the question, answer from general knowledge and begin with the disclaimer "This isn't in your syllabus, but...".
3. Keep the explanation clear and concise, using short examples where they help.
`

	QuizPromptTemplate = `You are an exam setter. Use only the syllabus context below.

Syllabus context:
{{.context}}

Topic: {{.subject}}

Create exactly {{.questions}} multiple choice questions about the topic.
Every question must have exactly {{.options}} options labelled "A)", "B)", "C)" and "D)".
The answer must be the single letter of the correct option.

Output ONLY a JSON array and nothing else, in this format:
[{"question": "...", "options": ["A) ...", "B) ...", "C) ...", "D) ..."], "answer": "A"}]
`

	GradeTextPromptTemplate = `You are a strict examiner. Grade the student's answer against the syllabus context only.

Syllabus context:
{{.context}}

Topic: {{.subject}}

Student answer:
{{.submission}}

Compare the answer with the context point by point. Penalise missing or incorrect facts.
Output Format (JSON ONLY): { "score": "X/10", "feedback": "..." }
`

	GradeVisionPromptTemplate = `You are a strict examiner. The attached image is a handwritten answer on the topic "{{.subject}}".

Syllabus context:
{{.context}}

Read the handwriting, then compare it with the syllabus context. Penalise missing or incorrect facts.
Reply in exactly this format:
GRADE: X/10
Critique: <what was correct, what was missing, how to improve>
`
)
