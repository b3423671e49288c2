package analysis

// schema is the subset of the Gemini OpenAPI schema object used for structured output.
type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// resultSchema constrains the model to the Result shape.
var resultSchema = &schema{
	Type: "OBJECT",
	Properties: map[string]*schema{
		"summary": {
			Type:        "STRING",
			Description: "A friendly, concise summary of the findings in 1-2 sentences, directly addressing the user's question.",
		},
		"chart": {
			Type: "OBJECT",
			Properties: map[string]*schema{
				"type": {
					Type:        "STRING",
					Enum:        []string{string(ChartBar), string(ChartPie), string(ChartNone)},
					Description: "The best chart type to visualize the data. Use 'bar' for comparisons, 'pie' for proportions. Use 'none' if no chart is relevant.",
				},
				"data": {
					Type:        "ARRAY",
					Description: "An array of objects for the chart. For 'bar' and 'pie' charts, each object should have a 'name' (string) and a 'value' (number) key.",
					Items: &schema{
						Type: "OBJECT",
						Properties: map[string]*schema{
							"name":  {Type: "STRING"},
							"value": {Type: "NUMBER"},
						},
					},
				},
			},
		},
	},
	Required: []string{"summary", "chart"},
}

const systemInstructionTemplate = `You are 'VeriFlow', a helpful AI data analysis assistant. Your task is to analyze the provided JSON product data based on the user's request.
- Provide a short, friendly textual summary of your findings.
- Determine the best chart type to visualize the answer.
- Format the data for that chart. If no chart is suitable, set the chart type to 'none' and data to an empty array.
- Here is the product data: %s`
