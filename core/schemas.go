package core

// Request body schemas.

var RecadoCreateSchema = Schema{
	Fields: []Field{
		{Name: "from", Kind: KindString, Required: true, Min: limit(2), Max: limit(50)},
		{Name: "to", Kind: KindString, Required: true, Min: limit(2), Max: limit(50)},
		{Name: "text", Kind: KindString, Required: true, Min: limit(2), Max: limit(250)},
	},
}

var RecadoUpdateSchema = Schema{
	Fields: []Field{
		{Name: "from", Kind: KindString, Min: limit(2), Max: limit(50)},
		{Name: "to", Kind: KindString, Min: limit(2), Max: limit(50)},
		{Name: "text", Kind: KindString, Min: limit(2), Max: limit(250)},
	},
}

// RecadoReplaceSchema is used by PUT; every content field must be sent again.
var RecadoReplaceSchema = RecadoCreateSchema

var LoginSchema = Schema{
	Fields: []Field{
		{
			Name: "username", Kind: KindString, Required: true, Min: limit(3), Max: limit(30),
			Messages: map[string]string{
				"min":      "username must be at least 3 characters long",
				"max":      "username must be at most 30 characters long",
				"required": "username is required",
			},
		},
		{
			Name: "password", Kind: KindString, Required: true, Min: limit(6), Max: limit(100),
			Messages: map[string]string{
				"min":      "password must be at least 6 characters long",
				"max":      "password must be at most 100 characters long",
				"required": "password is required",
			},
		},
	},
}

func recadoInputFrom(v map[string]any) RecadoInput {
	return RecadoInput{
		Text: v["text"].(string),
		From: v["from"].(string),
		To:   v["to"].(string),
	}
}

func recadoPatchFrom(v map[string]any) RecadoPatch {
	var p RecadoPatch
	if s, ok := v["text"].(string); ok {
		p.Text = &s
	}
	if s, ok := v["from"].(string); ok {
		p.From = &s
	}
	if s, ok := v["to"].(string); ok {
		p.To = &s
	}
	return p
}
