package cacao

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	recapPrefix   = "urn:recap:"
	requestAction = "request/"
)

// Recap is the decoded body of a ReCap resource:
// att -> resource -> ability -> caveats.
type Recap struct {
	Att map[string]map[string][]map[string]any `json:"att"`
}

// NewRecap grants "request/<method>" on resource (e.g. "eip155") for methods.
func NewRecap(resource string, methods []string) Recap {
	abilities := make(map[string][]map[string]any, len(methods))
	for _, m := range methods {
		abilities[requestAction+m] = []map[string]any{{}}
	}
	return Recap{Att: map[string]map[string][]map[string]any{resource: abilities}}
}

// URN encodes r as a resource string.
func (r Recap) URN() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return recapPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Methods returns the sorted request methods granted on resource.
func (r Recap) Methods(resource string) []string {
	var out []string
	for ability := range r.Att[resource] {
		if m, ok := strings.CutPrefix(ability, requestAction); ok {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// ParseRecap decodes a "urn:recap:" resource.
func ParseRecap(urn string) (Recap, error) {
	body, ok := strings.CutPrefix(urn, recapPrefix)
	if !ok {
		return Recap{}, fmt.Errorf("not a recap resource")
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body, "="))
	if err != nil {
		return Recap{}, fmt.Errorf("decode recap: %w", err)
	}
	var r Recap
	if err := json.Unmarshal(b, &r); err != nil {
		return Recap{}, fmt.Errorf("decode recap: %w", err)
	}
	return r, nil
}

// FindRecap returns the last ReCap among resources.
func FindRecap(resources []string) (Recap, int, bool) {
	for i := len(resources) - 1; i >= 0; i-- {
		if !strings.HasPrefix(resources[i], recapPrefix) {
			continue
		}
		r, err := ParseRecap(resources[i])
		if err != nil {
			continue
		}
		return r, i, true
	}
	return Recap{}, -1, false
}

// RecapMethods returns the methods granted on resource by the ReCap in
// resources, if any.
func RecapMethods(resources []string, resource string) []string {
	r, _, ok := FindRecap(resources)
	if !ok {
		return nil
	}
	return r.Methods(resource)
}

// statement renders the ReCap summary EIP-5573 appends to the statement.
func (r Recap) statement() string {
	resources := make([]string, 0, len(r.Att))
	for res := range r.Att {
		resources = append(resources, res)
	}
	sort.Strings(resources)

	var parts []string
	for i, res := range resources {
		byAction := map[string][]string{}
		var actions []string
		for ability := range r.Att[res] {
			ns, name, ok := strings.Cut(ability, "/")
			if !ok {
				continue
			}
			if _, seen := byAction[ns]; !seen {
				actions = append(actions, ns)
			}
			byAction[ns] = append(byAction[ns], name)
		}
		sort.Strings(actions)
		for _, a := range actions {
			names := byAction[a]
			sort.Strings(names)
			quoted := make([]string, len(names))
			for j, n := range names {
				quoted[j] = "'" + n + "'"
			}
			parts = append(parts, fmt.Sprintf("(%d) '%s': %s for '%s'.", i+1, a, strings.Join(quoted, ", "), res))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "I further authorize the stated URI to perform the following actions on my behalf: " + strings.Join(parts, " ")
}
