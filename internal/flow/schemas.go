package flow

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/turnero/turnero/internal/models"
)

// Tool definitions exposed to the LLM. Parameter schemas mirror the typed
// parameter structs in the models package; arguments are re-validated there
// before execution, so these schemas are guidance for the model, not the
// enforcement point.

func hoursEntrySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"day_of_week": map[string]interface{}{
					"type":        "integer",
					"description": "Day of week, 0=Sunday through 6=Saturday",
				},
				"start_time": map[string]interface{}{
					"type":        "string",
					"description": "Start of the window in 24-hour HH:MM",
				},
				"end_time": map[string]interface{}{
					"type":        "string",
					"description": "End of the window in 24-hour HH:MM",
				},
			},
			"required": []string{"day_of_week", "start_time", "end_time"},
		},
	}
}

func toolDef(name models.ToolName, description string, properties map[string]interface{}, required []string) openai.ChatCompletionToolParam {
	params := shared.FunctionParameters{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(name),
			Description: openai.String(description),
			Parameters:  params,
		},
	}
}

// --- Business onboarding ---

func saveBusinessInfoTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveBusinessInfo,
		"Save the business's basic details once the owner has provided them: name, IANA timezone and reply language.",
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "The business name as the owner wants customers to see it",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone name, e.g. America/Argentina/Buenos_Aires",
			},
			"locale": map[string]interface{}{
				"type":        "string",
				"description": "Reply language, 'es' or 'en'. Default 'es'.",
			},
		},
		[]string{"name", "timezone"})
}

func saveServicesTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveServices,
		"Save the list of bookable services with their durations and optional prices.",
		map[string]interface{}{
			"services": map[string]interface{}{
				"type":        "array",
				"description": "The services customers can book",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":         map[string]interface{}{"type": "string"},
						"duration_min": map[string]interface{}{"type": "integer", "description": "Duration in minutes"},
						"price_cents":  map[string]interface{}{"type": "integer", "description": "Price in cents, optional"},
					},
					"required": []string{"name", "duration_min"},
				},
			},
		},
		[]string{"services"})
}

func saveHoursTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveHours,
		"Save the business's weekly opening hours.",
		map[string]interface{}{
			"hours": hoursEntrySchema("Weekly opening windows"),
		},
		[]string{"hours"})
}

func saveStaffTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveStaff,
		"Save additional staff members who will take appointments. Optional; skip if the owner works alone.",
		map[string]interface{}{
			"staff": map[string]interface{}{
				"type":        "array",
				"description": "Staff members with their WhatsApp numbers",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":             map[string]interface{}{"type": "string"},
						"phone_number":     map[string]interface{}{"type": "string", "description": "WhatsApp number in international format"},
						"permission_level": map[string]interface{}{"type": "string", "description": "owner, admin, staff or viewer. Default staff."},
					},
					"required": []string{"name", "phone_number"},
				},
			},
		},
		[]string{"staff"})
}

func finalizeBusinessTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolFinalizeBusiness,
		"Create the business with everything collected so far. Call exactly once, after the owner confirms the summary. This must always be called to complete setup; nothing is created until it runs.",
		map[string]interface{}{}, nil)
}

// --- Staff onboarding ---

func saveStaffNameTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveStaffName,
		"Save the staff member's display name once provided.",
		map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		[]string{"name"})
}

func saveStaffAvailabilityTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveStaffAvailability,
		"Save the staff member's weekly working hours.",
		map[string]interface{}{
			"rules": hoursEntrySchema("Weekly working windows"),
		},
		[]string{"rules"})
}

func completeTutorialTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolCompleteTutorial,
		"Mark the tutorial as seen and finish onboarding. Call after showing the staff member how bookings work.",
		map[string]interface{}{}, nil)
}

// --- Customer flow ---

func selectServiceTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSelectService,
		"Record which service the customer wants to book. Use the service IDs from the instructions.",
		map[string]interface{}{
			"service_id": map[string]interface{}{"type": "string"},
		},
		[]string{"service_id"})
}

func queryAvailabilityTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolQueryAvailability,
		"Look up open appointment slots for the selected service. Results are advisory until the booking is confirmed.",
		map[string]interface{}{
			"service_id": map[string]interface{}{"type": "string"},
			"staff_id":   map[string]interface{}{"type": "string", "description": "Restrict to one staff member, optional"},
			"from_date":  map[string]interface{}{"type": "string", "description": "First date to check, YYYY-MM-DD in the business timezone"},
			"days":       map[string]interface{}{"type": "integer", "description": "How many days to check, max 14"},
		},
		[]string{"service_id", "from_date"})
}

func selectSlotTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSelectSlot,
		"Record the slot the customer picked from the offered availability.",
		map[string]interface{}{
			"staff_id": map[string]interface{}{"type": "string"},
			"start":    map[string]interface{}{"type": "string", "description": "Slot start in RFC 3339"},
		},
		[]string{"staff_id", "start"})
}

func savePersonalInfoTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSavePersonalInfo,
		"Save the customer's name for the booking.",
		map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		[]string{"name"})
}

func confirmBookingTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolConfirmBooking,
		"Commit the booking after the customer confirms the summary. May report a conflict if the slot was just taken; offer the returned alternatives.",
		map[string]interface{}{}, nil)
}

func identifyBookingTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolIdentifyBooking,
		"Record which existing appointment the customer wants to change or cancel. Use the appointment IDs from the instructions.",
		map[string]interface{}{
			"appointment_id": map[string]interface{}{"type": "string"},
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "What the customer wants: 'modify' or 'cancel'",
			},
		},
		[]string{"appointment_id", "intent"})
}

func selectModificationTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSelectModification,
		"Record what the customer wants to change about their appointment.",
		map[string]interface{}{
			"field": map[string]interface{}{
				"type":        "string",
				"description": "One of: datetime, service, staff",
			},
		},
		[]string{"field"})
}

func saveNewValueTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolSaveNewValue,
		"Save the replacement value for the field being modified. For datetime use RFC 3339; for service or staff use the IDs from the instructions.",
		map[string]interface{}{
			"value": map[string]interface{}{"type": "string"},
		},
		[]string{"value"})
}

func confirmCancellationTool() openai.ChatCompletionToolParam {
	return toolDef(models.ToolConfirmCancellation,
		"Cancel the identified appointment after the customer confirms.",
		map[string]interface{}{}, nil)
}

// --- Business management ---

func managementActionTool(allowed []models.ManagementAction) openai.ChatCompletionToolParam {
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		names = append(names, string(a))
	}
	return toolDef(models.ToolManagementAction,
		"Perform one business management operation on behalf of the staff member.",
		map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "The operation to perform",
				"enum":        names,
			},
			"staff_id":       map[string]interface{}{"type": "string", "description": "Target staff member, where the action needs one"},
			"appointment_id": map[string]interface{}{"type": "string", "description": "Target appointment, for cancel_appointment"},
			"permission_level": map[string]interface{}{
				"type":        "string",
				"description": "New level for update_staff_permission: owner, admin, staff or viewer",
			},
			"rules": hoursEntrySchema("Replacement weekly hours, for update_availability"),
			"date":  map[string]interface{}{"type": "string", "description": "Day to inspect, YYYY-MM-DD"},
		},
		[]string{"action"})
}
