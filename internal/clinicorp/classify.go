package clinicorp

// classifyResponse post-processes the raw upstream status/body, special-casing
// known upstream quirks before the envelope is returned to the caller.
func classifyResponse(correctedPath string, status int, data any) (*Response, *Error) {
	// The subscriber-clinics listing signals "no data" ambiguously: empty
	// array, empty object, or no body at all. All of them mean an empty,
	// successful result.
	if correctedPath == "/group/list_subscribers_clinics" && isEmptyPayload(data) {
		return &Response{Status: 200, Data: []any{}, Success: true}, nil
	}

	// The calendar endpoint answers bad access codes with a 500. Surface it
	// as a domain error instead of a generic server failure.
	if correctedPath == "/appointment/get_avaliable_times_calendar" && status == 500 {
		return nil, NewError(CodeInvalidCodeLink, 422,
			"Código de acesso inválido ou horários não disponíveis para esta data").
			WithDetails(map[string]any{"original_error": data})
	}

	return &Response{
		Status:  status,
		Data:    data,
		Success: status >= 200 && status < 300,
	}, nil
}

func isEmptyPayload(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
