package decompose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

const graphRules = `You are Matrioska Architect. Decompose user requests into isolated modules that communicate via shared_state.

RULES:
1. Each module must be independently executable from its own manual plus the shared state it reads.
2. Keep code simple: prefer CDNs and well-known libraries over custom build systems.
3. Declare every piece of information another module needs (element IDs, class names, API routes) in shared_state_writes of the producer and shared_state_reads of the consumer.
4. Dependencies must reference module ids from the same document. A module runs only after all its dependencies.
5. Put the detailed, self-contained instructions for each module in specific_manuals.

Reply with a single JSON object matching this schema and nothing else:
`

const orderedRules = `You are Matrioska Architect. Split the user request into the files that make up the project, in the order they must be created.

OUTPUT FORMAT RULES:
1. The root key is "instructs" and it holds a "files" array.
2. "order" starts at 1. A file may only read information written by files with a lower order.
3. Use "shared_state_writes" for key information a file defines (element IDs, class names, API routes) and "shared_state_reads" for information it needs from earlier files.
4. "content" is a detailed prompt for a coding AI that demands the full, reduced and efficient code of the file, using CDNs where appropriate.
5. "details" holds concise functional and non-functional requirements.
6. Avoid build systems. Every file must be usable as generated.

Reply with a single JSON object matching this schema and nothing else:
`

var graphExample = graphDocument{
	ProjectName: "Library Management System",
	GeneralManual: &generalManual{
		Goal: "A web page to register, search and lend books",
		Modules: []graphModule{
			{
				ID:                "html_structure",
				Name:              "HTML Structure",
				Description:       "Page layout with the book form, search box and results table",
				Outputs:           "index.html markup",
				Dependencies:      []string{},
				SharedStateReads:  []string{},
				SharedStateWrites: []string{"element_ids"},
			},
			{
				ID:                "css_styling",
				Name:              "CSS Styling",
				Description:       "Responsive styling for the page",
				Dependencies:      []string{"html_structure"},
				SharedStateReads:  []string{"element_ids"},
				SharedStateWrites: []string{"css_classes"},
			},
			{
				ID:                "backend_api",
				Name:              "Backend API",
				Description:       "REST endpoints for books and loans",
				Dependencies:      []string{},
				SharedStateReads:  []string{},
				SharedStateWrites: []string{"api_routes"},
			},
			{
				ID:                "auth_logic",
				Name:              "Auth Logic",
				Description:       "Client-side login flow against the backend",
				Dependencies:      []string{"html_structure", "backend_api"},
				SharedStateReads:  []string{"element_ids", "api_routes"},
				SharedStateWrites: []string{},
			},
		},
		IntegrationRules: "Link the stylesheet and scripts from index.html and serve everything from the backend",
	},
	SpecificManuals: []specificManual{
		{
			ModuleID:   "html_structure",
			ManualText: "Write index.html with a form#bookForm, an input#searchBox and a table#results. Load scripts from a CDN where needed.",
		},
	},
}

var orderedExample = orderedDocument{
	Instructs: &instructs{
		Files: []orderedFile{
			{
				Name:              "style",
				Extension:         "css",
				Order:             1,
				SharedStateWrites: []string{"css_classes"},
				SharedStateReads:  []string{},
				Content:           "Write the complete stylesheet for a todo list page with .todo-item and .done classes.",
				Details:           "Mobile first, no preprocessors",
			},
			{
				Name:              "index",
				Extension:         "html",
				Order:             2,
				SharedStateWrites: []string{"element_ids"},
				SharedStateReads:  []string{"css_classes"},
				Content:           "Write index.html for the todo list, linking style.css and app.js, with ul#todoList and form#todoForm.",
				Details:           "Semantic markup",
			},
			{
				Name:              "app",
				Extension:         "js",
				Order:             3,
				SharedStateWrites: []string{},
				SharedStateReads:  []string{"element_ids", "css_classes"},
				Content:           "Write app.js that adds, toggles and removes todos using the declared ids and classes.",
				Details:           "Vanilla JS, persist in localStorage",
			},
		},
	},
}

// SystemPrompt returns the decomposition instruction for schema.
func SystemPrompt(schema models.Schema) string {
	var (
		rules   string
		target  any
		example any
	)
	switch schema {
	case models.SchemaOrdered:
		rules, target, example = orderedRules, &orderedDocument{}, orderedExample
	default:
		rules, target, example = graphRules, &graphDocument{}, graphExample
	}

	var sb strings.Builder
	sb.WriteString(rules)
	sb.WriteString(reflectSchema(target))
	sb.WriteString("\n\nEXAMPLE:\n")
	sb.WriteString(mustIndent(example))
	sb.WriteString("\n")
	return sb.String()
}

// UserPrompt wraps the task for the decomposition request.
func UserPrompt(task string) string {
	return fmt.Sprintf("NOW PROCESS THIS REQUEST:\n%s", task)
}

func reflectSchema(v any) string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return mustIndent(reflector.Reflect(v))
}

func mustIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("marshal prompt fragment: %v", err))
	}
	return string(data)
}
