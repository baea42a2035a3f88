package functions

import "google.golang.org/genai"

// Declarations returns the tool schema announced to the model at setup.
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        GetCurrentTime,
			Description: "Get the current local time and date of the business. Use this to know what time it is right now.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			},
		},
		{
			Name:        CheckAvailability,
			Description: "Check which times are already booked on a specific date in the Outlook calendar.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"date": {Type: genai.TypeString, Description: "Date to check in YYYY-MM-DD format."},
				},
				Required: []string{"date"},
			},
		},
		{
			Name:        BookAppointment,
			Description: "Book an appointment in the Outlook calendar.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"date":    {Type: genai.TypeString, Description: "Date of appointment in YYYY-MM-DD format."},
					"time":    {Type: genai.TypeString, Description: "Time of appointment (e.g., 14:00)."},
					"name":    {Type: genai.TypeString, Description: "Name of the customer."},
					"phone":   {Type: genai.TypeString, Description: "Phone number."},
					"address": {Type: genai.TypeString, Description: "Address for the outcall."},
				},
				Required: []string{"date", "time", "name", "address"},
			},
		},
	}
}

// Tools wraps Declarations for a live session setup.
func Tools() []*genai.Tool {
	return []*genai.Tool{{FunctionDeclarations: Declarations()}}
}
