package clinicorp

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Alias tables: canonical key first, accepted aliases in probe order. Kept
// declarative so each endpoint quirk is a data change, not a new branch.
var (
	professionalAliases = []string{"professional_id", "professionalId", "codigo_profissional", "codigoProfissional", "professional", "id_professional"}
	dateAliases         = []string{"date", "data", "appointment_date"}
	codeLinkAliases     = []string{"code_link", "codelink", "codeLink", "access_code", "codigo_acesso", "codigoAcesso", "code"}
	timeAliases         = []string{"time", "hora", "hour"}
	nameAliases         = []string{"name", "full_name", "fullName", "nome", "nome_completo"}
	businessIDAliases   = []string{"business_id", "businessId"}
)

var (
	dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numericRe  = regexp.MustCompile(`^\d+$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "HEAD": true,
}

// CodeLinkResolver resolves a human slug into the numeric code the upstream
// calendar endpoint requires. Implementations are best-effort: ok=false keeps
// the original value.
type CodeLinkResolver interface {
	ResolveNumericCodeLink(ctx context.Context, creds Credentials, subscriberID any, slug, date string) (string, bool)
}

// Normalizer rewrites the uniform inbound request into the shape the upstream
// expects for each endpoint family.
type Normalizer struct {
	codeLinks CodeLinkResolver
	logger    *logging.Logger
}

// NewNormalizer creates a Normalizer. resolver may be nil; slug resolution is
// then skipped and original values pass through.
func NewNormalizer(resolver CodeLinkResolver, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{codeLinks: resolver, logger: logger}
}

// endpointRule applies one endpoint family's rewrites. Rules run in
// registration order, mirroring the upstream-facing pipeline: a path may match
// several rules.
type endpointRule struct {
	name  string
	match func(pathLower, pathRaw string) bool
	apply func(ctx context.Context, n *Normalizer, st *normalizeState) *Error
}

type normalizeState struct {
	req   *NormalizedRequest
	creds Credentials
}

func containsRule(substr string) func(string, string) bool {
	return func(pathLower, _ string) bool { return strings.Contains(pathLower, substr) }
}

func exactRule(path string) func(string, string) bool {
	return func(_, pathRaw string) bool { return pathRaw == path }
}

var endpointRules = []endpointRule{
	{name: "available_times_professional_alias", match: containsRule("/appointment/get_avaliable_times"), apply: applyProfessionalAlias},
	{name: "available_days", match: containsRule("/appointment/get_avaliable_days"), apply: applyAvailableDays},
	{name: "available_times_calendar", match: containsRule("/appointment/get_avaliable_times_calendar"), apply: applyCalendar},
	{name: "create_appointment", match: containsRule("create_appointment_by_api"), apply: applyCreateAppointment},
	{name: "create_patient", match: containsRule("/patient/create"), apply: applyCreatePatient},
	{name: "patient_list_rewrite", match: exactRule("/patient/list"), apply: applyPatientListRewrite},
	{name: "appointment_business_id", match: containsRule("/appointment/"), apply: applyBusinessID},
	{name: "financial_summary_rewrite", match: exactRule("/financial/summary"), apply: applyFinancialSummary},
	{name: "calendar_precheck", match: exactRule("/appointment/get_avaliable_times_calendar"), apply: applyCalendarPrecheck},
}

// Normalize validates the request, applies the general rewrites and every
// matching endpoint rule, and returns the corrected request.
func (n *Normalizer) Normalize(ctx context.Context, req Request, creds Credentials) (*NormalizedRequest, *Error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, NewError(CodeMissingPath, 400, "Parâmetro 'path' é obrigatório")
	}
	if strings.Contains(req.Path, "http") {
		return nil, NewError(CodeMissingPath, 400, "Path must be relative")
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if !allowedMethods[method] {
		method = "GET"
	}

	st := &normalizeState{
		req: &NormalizedRequest{
			Path:   req.Path,
			Method: method,
			Query:  cloneMap(req.Query),
			Body:   cloneBody(req.Body),
		},
		creds: creds,
	}

	n.ensureSubscriberID(st)

	// Date-key canonicalization and from/to UTC coercion apply to every
	// date-bearing request, not a single endpoint family.
	canonicalize(st.req.Query, dateAliases)
	ensureFromToUTC(st.req.Query, n.logger)
	if body, ok := st.req.Body.(map[string]any); ok {
		ensureFromToUTC(body, n.logger)
	}

	pathLower := strings.ToLower(st.req.Path)
	for _, rule := range endpointRules {
		if !rule.match(pathLower, req.Path) {
			continue
		}
		if err := rule.apply(ctx, n, st); err != nil {
			return nil, err
		}
	}

	return st.req, nil
}

// ensureSubscriberID injects subscriber_id into both the query and an object
// body, preferring the clinic subscriber id over the API user identity.
func (n *Normalizer) ensureSubscriberID(st *normalizeState) {
	subscriber := st.creds.SubscriberID
	if subscriber == "" {
		subscriber = st.creds.APIUser
	}
	if subscriber == "" {
		return
	}
	if isEmpty(st.req.Query["subscriber_id"]) {
		st.req.Query["subscriber_id"] = subscriber
	}
	if body, ok := st.req.Body.(map[string]any); ok && isEmpty(body["subscriber_id"]) {
		body["subscriber_id"] = subscriber
	}
}

func applyProfessionalAlias(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	canonicalize(st.req.Query, professionalAliases)
	return nil
}

func applyAvailableDays(_ context.Context, n *Normalizer, st *normalizeState) *Error {
	q := st.req.Query
	from, fromOK := toDateOnly(q["from"])
	toVal := q["to"]
	if isEmpty(toVal) {
		toVal = q["from"]
	}
	to, toOK := toDateOnly(toVal)
	if fromOK {
		q["from"] = from
	}
	if toOK {
		q["to"] = to
	}
	if fromOK && toOK && to < from {
		n.logger.Warn("clamping 'to' below 'from'", "from", from, "to", to, "path", st.req.Path)
		q["to"] = from
	}
	if isEmpty(q["code_link"]) && st.creds.OnlineSlug != "" {
		q["code_link"] = st.creds.OnlineSlug
	}
	return nil
}

func applyCalendar(ctx context.Context, n *Normalizer, st *normalizeState) *Error {
	q := st.req.Query
	canonicalize(q, codeLinkAliases)

	if !isEmpty(q["date"]) {
		formatted, ok := toDateOnly(q["date"])
		if !ok {
			return NewError(CodeMissingParameters, 400, "Invalid date format. Expected YYYY-MM-DD")
		}
		q["date"] = formatted
	}

	var missing []string
	if isEmpty(q["subscriber_id"]) {
		missing = append(missing, "subscriber_id")
	}
	if isEmpty(q["date"]) {
		missing = append(missing, "date")
	}

	// A textual code_link is a human slug; the upstream wants the numeric
	// form, resolved through the available-days endpoint. Resolution is
	// best-effort: on failure the original value is sent unchanged.
	rawCode := q["code_link"]
	if isEmpty(rawCode) && st.creds.OnlineSlug != "" {
		rawCode = st.creds.OnlineSlug
	}
	if slug := asString(rawCode); slug != "" && !numericRe.MatchString(slug) && n.codeLinks != nil {
		date, ok := toDateOnly(q["date"])
		if !ok {
			date = time.Now().UTC().Format("2006-01-02")
		}
		if numeric, ok := n.codeLinks.ResolveNumericCodeLink(ctx, st.creds, q["subscriber_id"], slug, date); ok {
			q["code_link"] = numeric
		} else {
			n.logger.Warn("failed to resolve numeric code_link, keeping original", "code_link", slug)
		}
	}
	if isEmpty(q["code_link"]) && !isEmpty(rawCode) {
		q["code_link"] = rawCode
	}

	if isEmpty(q["code_link"]) {
		missing = append(missing, "code_link")
	}
	if len(missing) > 0 {
		return NewError(CodeMissingParameters, 400, "Missing required parameters").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func applyCreateAppointment(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	target := st.req.Query
	if st.req.Method != "GET" && st.req.Method != "HEAD" {
		body, ok := st.req.Body.(map[string]any)
		if !ok {
			return nil
		}
		target = body
	}
	ensureAppointmentAccess(target, st.creds.OnlineSlug)
	return nil
}

// ensureAppointmentAccess fills access_code/code_link from the online slug and
// fans the time and professional values out across every alias the upstream's
// API versions have accepted.
func ensureAppointmentAccess(target map[string]any, onlineSlug string) {
	if target == nil {
		return
	}
	if onlineSlug != "" {
		if !hasAnyKey(target, "access_code", "accessCode", "codigo_acesso", "codigoAcesso") {
			target["access_code"] = onlineSlug
		}
		if !hasAnyKey(target, "code_link", "codeLink", "codigo", "codigo_link") {
			target["code_link"] = onlineSlug
		}
	}
	if _, t, ok := pickAlias(target, timeAliases); ok && !isEmpty(t) {
		target["time"] = t
		target["hora"] = t
		target["hour"] = t
		target["start_time"] = t
	}
	canonicalize(target, professionalAliases)
}

func applyCreatePatient(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	body, ok := st.req.Body.(map[string]any)
	if !ok {
		return nil
	}

	var nested map[string]any
	for _, k := range []string{"patient", "paciente", "cliente"} {
		if m, ok := body[k].(map[string]any); ok {
			nested = m
			break
		}
	}

	nameVal := firstNonEmpty(body, nameAliases)
	if nameVal == "" && nested != nil {
		nameVal = firstNonEmpty(nested, []string{"name", "nome", "full_name", "fullName", "Nome"})
	}
	if nameVal != "" {
		clean := strings.TrimSpace(nameVal)
		for _, k := range append(nameAliases, "Nome") {
			body[k] = clean
		}
		nestedOut := map[string]any{}
		for k, v := range nested {
			nestedOut[k] = v
		}
		nestedOut["name"] = clean
		nestedOut["nome"] = clean
		nestedOut["full_name"] = clean
		body["patient"] = nestedOut
		body["paciente"] = cloneMap(nestedOut)
	}

	if nested != nil {
		mergeIfMissing(body, "cpf", nested["cpf"], nested["CPF"])
		mergeIfMissing(body, "phone", nested["phone"], nested["telefone"], nested["celular"])
		mergeIfMissing(body, "email", nested["email"])
	}

	// Upstream wants bare digits for identity and contact numbers.
	if !isEmpty(body["cpf"]) {
		body["cpf"] = nonDigitRe.ReplaceAllString(asString(body["cpf"]), "")
	}
	if !isEmpty(body["phone"]) {
		body["phone"] = nonDigitRe.ReplaceAllString(asString(body["phone"]), "")
	}
	return nil
}

func applyPatientListRewrite(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	// /patient/list no longer exists upstream; /patient/get replaces it but
	// requires a lookup key.
	q := st.req.Query
	hasPatientID := !isEmpty(q["PatientId"]) || !isEmpty(q["patientId"]) || !isEmpty(q["patient_id"])
	hasName := !isEmpty(q["Name"]) || !isEmpty(q["name"]) || !isEmpty(q["nome"])
	if !hasPatientID && !hasName {
		return NewError(CodeMissingParameters, 422, "Parâmetros obrigatórios ausentes: PatientId ou Name").
			WithDetails(map[string]any{"required": []string{"PatientId", "Name"}, "provided": mapKeys(q)})
	}
	st.req.Path = "/patient/get"
	return nil
}

func applyBusinessID(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	q := st.req.Query
	canonicalize(q, businessIDAliases)
	delete(q, "businessId")
	if isEmpty(q["business_id"]) {
		businessID := st.creds.SubscriberID
		if businessID == "" {
			businessID = st.creds.APIUser
		}
		if businessID != "" {
			q["business_id"] = businessID
		}
	}
	return nil
}

func applyFinancialSummary(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	st.req.Path = "/financial/list_summary"
	return nil
}

func applyCalendarPrecheck(_ context.Context, _ *Normalizer, st *normalizeState) *Error {
	if isEmpty(st.req.Query["code_link"]) && st.creds.OnlineSlug == "" {
		return NewError(CodeMissingParameters, 422, "Parâmetro obrigatório ausente: code_link").
			WithDetails(map[string]any{"required": []string{"code_link"}, "provided": mapKeys(st.req.Query)})
	}
	return nil
}

// --- generic helpers ---

// pickAlias returns the first alias present in m.
func pickAlias(m map[string]any, aliases []string) (string, any, bool) {
	for _, k := range aliases {
		if v, ok := m[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

// canonicalize copies the first matching alias value onto the canonical key
// (the first entry of the alias list).
func canonicalize(m map[string]any, aliases []string) {
	if m == nil || len(aliases) == 0 {
		return
	}
	canonical := aliases[0]
	if k, v, ok := pickAlias(m, aliases); ok && k != canonical {
		m[canonical] = v
	}
}

func firstNonEmpty(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func mergeIfMissing(m map[string]any, key string, candidates ...any) {
	if !isEmpty(m[key]) {
		return
	}
	for _, c := range candidates {
		if !isEmpty(c) {
			m[key] = c
			return
		}
	}
}

func hasAnyKey(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBody(body any) any {
	if m, ok := body.(map[string]any); ok {
		return cloneMap(m)
	}
	return body
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// instantLayouts are accepted when coercing instants and dates.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range instantLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// toIsoUTC coerces an instant-valued field to full ISO-8601 UTC.
func toIsoUTC(v any) (string, bool) {
	t, ok := parseInstant(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z"), true
}

// toDateOnly coerces to YYYY-MM-DD. Already date-only strings pass unchanged.
func toDateOnly(v any) (string, bool) {
	if s, ok := v.(string); ok && dateOnlyRe.MatchString(strings.TrimSpace(s)) {
		return strings.TrimSpace(s), true
	}
	t, ok := parseInstant(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format("2006-01-02"), true
}

// ensureFromToUTC coerces from/to instants to ISO-8601 UTC and clamps to up to
// from so that from <= to always holds.
func ensureFromToUTC(obj map[string]any, logger *logging.Logger) {
	if obj == nil {
		return
	}
	if _, ok := obj["from"]; ok {
		if v, ok := toIsoUTC(obj["from"]); ok {
			obj["from"] = v
		}
	}
	if _, ok := obj["to"]; ok {
		if v, ok := toIsoUTC(obj["to"]); ok {
			obj["to"] = v
		}
	}
	from, fromOK := parseInstant(obj["from"])
	to, toOK := parseInstant(obj["to"])
	if fromOK && toOK && to.Before(from) {
		if logger != nil {
			logger.Warn("clamping 'to' below 'from'", "from", obj["from"], "to", obj["to"])
		}
		obj["to"] = obj["from"]
	}
}
