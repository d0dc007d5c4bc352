package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"brigade/internal/models"
)

// RouteDecision assigns instructions to one department.
type RouteDecision struct {
	DepartmentID string  `json:"department_id"`
	Instructions string  `json:"instructions"`
	Relevance    float64 `json:"relevance"`
}

// Router decides which departments handle a request.
type Router interface {
	Route(ctx context.Context, prompt string, pc ProjectContext) ([]RouteDecision, error)
}

// MinRelevance is the relevance at or above which a routed department counts
// toward completeness.
const MinRelevance = 0.3

// DepartmentLister lists routable departments.
type DepartmentLister interface {
	ListActive(ctx context.Context) ([]models.Department, error)
}

// KeywordRouter routes by overlap between the prompt and each department's
// keywords, slug and name.
type KeywordRouter struct {
	departments DepartmentLister
}

// NewKeywordRouter creates a keyword router.
func NewKeywordRouter(departments DepartmentLister) *KeywordRouter {
	return &KeywordRouter{departments: departments}
}

// Route returns departments with at least one keyword hit, most relevant
// first. When nothing matches every active department is routed at
// MinRelevance.
func (r *KeywordRouter) Route(ctx context.Context, prompt string, _ ProjectContext) ([]RouteDecision, error) {
	depts, err := r.departments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	if len(depts) == 0 {
		return nil, &DependencyNotFoundError{Kind: "department", Key: "*"}
	}

	lower := strings.ToLower(prompt)
	words := map[string]bool{}
	for _, w := range tokenize(lower) {
		words[w] = true
	}

	var routes []RouteDecision
	for _, d := range depts {
		hits := 0
		for _, k := range departmentTerms(d) {
			if strings.Contains(k, " ") {
				if strings.Contains(lower, k) {
					hits++
				}
			} else if words[k] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		routes = append(routes, RouteDecision{
			DepartmentID: d.ID,
			Instructions: prompt,
			Relevance:    math.Min(1, MinRelevance+0.2*float64(hits)),
		})
	}

	if len(routes) == 0 {
		for _, d := range depts {
			routes = append(routes, RouteDecision{DepartmentID: d.ID, Instructions: prompt, Relevance: MinRelevance})
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Relevance != routes[j].Relevance {
			return routes[i].Relevance > routes[j].Relevance
		}
		return routes[i].DepartmentID < routes[j].DepartmentID
	})
	return routes, nil
}

func departmentTerms(d models.Department) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	for _, k := range d.Keywords {
		add(k)
	}
	add(d.Slug)
	for _, w := range tokenize(strings.ToLower(d.Name)) {
		if len(w) > 3 {
			add(w)
		}
	}
	return terms
}

// ModelRouter asks the master agent to route the request and falls back to
// another router when the answer cannot be used.
type ModelRouter struct {
	svc         Services
	masterID    string
	departments DepartmentLister
	fallback    Router
}

// NewModelRouter creates a router backed by the master agent.
func NewModelRouter(svc Services, masterAgentID string, departments DepartmentLister, fallback Router) *ModelRouter {
	return &ModelRouter{svc: svc.withDefaults(), masterID: masterAgentID, departments: departments, fallback: fallback}
}

type modelRoute struct {
	Department   string  `json:"department"`
	Instructions string  `json:"instructions"`
	Relevance    float64 `json:"relevance"`
}

// Route implements Router.
func (r *ModelRouter) Route(ctx context.Context, prompt string, pc ProjectContext) ([]RouteDecision, error) {
	depts, err := r.departments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}

	master, err := r.masterAgent(ctx)
	if err != nil {
		return nil, err
	}

	inv, _, err := r.svc.invokeRecorded(ctx, *master, buildRoutingPrompt(prompt, pc, depts), TaskContext{
		RunID:          pc.RunID,
		ProjectID:      pc.ProjectID,
		ConversationID: pc.ConversationID,
	})
	if err == nil {
		var routes []RouteDecision
		routes, err = parseRoutes(inv.Output, prompt, depts)
		if err == nil {
			return routes, nil
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("model routing: %w", err)
	}
	r.svc.Logger.Warn("model routing unusable, falling back", "error", err)
	return r.fallback.Route(ctx, prompt, pc)
}

func (r *ModelRouter) masterAgent(ctx context.Context) (*models.Agent, error) {
	filter := models.AgentFilter{ID: r.masterID, Level: models.LevelMaster}
	agents, err := r.svc.Agents.FindActive(ctx, filter, "")
	if err != nil {
		return nil, fmt.Errorf("finding master agent: %w", err)
	}
	if len(agents) == 0 {
		return nil, &DependencyNotFoundError{Kind: "master agent", Key: r.masterID}
	}
	return &agents[0], nil
}

func buildRoutingPrompt(prompt string, pc ProjectContext, depts []models.Department) string {
	var b strings.Builder
	b.WriteString("Decide which departments should work on the request below.\n\nDepartments:\n")
	for _, d := range depts {
		fmt.Fprintf(&b, "- %s: %s. %s\n", d.Slug, d.Name, d.Description)
	}
	if pc.Background != "" {
		b.WriteString("\nProject background:\n")
		b.WriteString(pc.Background)
		b.WriteString("\n")
	}
	b.WriteString("\nRequest:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nAnswer with a JSON array only, one element per relevant department: ")
	b.WriteString(`[{"department": "<slug>", "instructions": "<what this department must do>", "relevance": <0.0-1.0>}]`)
	return b.String()
}

var errNoRoutes = errors.New("no usable routes in model output")

func parseRoutes(output, prompt string, depts []models.Department) ([]RouteDecision, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, errNoRoutes
	}
	var raw []modelRoute
	if err := json.Unmarshal([]byte(output[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decoding routes: %w", err)
	}

	byKey := make(map[string]models.Department, len(depts)*2)
	for _, d := range depts {
		byKey[strings.ToLower(d.ID)] = d
		byKey[strings.ToLower(d.Slug)] = d
	}

	seen := map[string]bool{}
	var routes []RouteDecision
	for _, mr := range raw {
		d, ok := byKey[strings.ToLower(strings.TrimSpace(mr.Department))]
		if !ok || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		instr := strings.TrimSpace(mr.Instructions)
		if instr == "" {
			instr = prompt
		}
		routes = append(routes, RouteDecision{
			DepartmentID: d.ID,
			Instructions: instr,
			Relevance:    math.Max(0, math.Min(1, mr.Relevance)),
		})
	}
	if len(routes) == 0 {
		return nil, errNoRoutes
	}
	return routes, nil
}
