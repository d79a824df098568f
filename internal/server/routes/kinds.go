package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/coverhub/internal/kindmodule"
	"github.com/any-hub/coverhub/internal/server"
)

// RegisterKindRoutes 暴露 /-/kinds 诊断接口，供运维查询类型元数据与生效策略。
func RegisterKindRoutes(app *fiber.App, registry *server.KindRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/kinds", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"kinds":    encodeKinds(kindmodule.List()),
			"bindings": encodeBindings(registry.List()),
		}
		return c.JSON(payload)
	})

	app.Get("/-/kinds/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind_key_required"})
		}
		meta, ok := kindmodule.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "kind_not_found"})
		}
		encoded := encodeKind(meta)
		if route, ok := registry.Lookup(key); ok {
			binding := encodeBinding(*route)
			encoded.Binding = &binding
		}
		return c.JSON(encoded)
	})
}

type kindPayload struct {
	Key           string          `json:"key"`
	Description   string          `json:"description"`
	CoverDir      string          `json:"cover_dir"`
	MaxFetchBytes int64           `json:"max_fetch_bytes"`
	Policy        policyPayload   `json:"default_policy"`
	Binding       *bindingPayload `json:"binding,omitempty"`
}

type policyPayload struct {
	SkipOverride    bool `json:"skip_override"`
	SkipDiskRead    bool `json:"skip_disk_read"`
	SkipDiskWrite   bool `json:"skip_disk_write"`
	SkipMemoryWrite bool `json:"skip_memory_write"`
}

type bindingPayload struct {
	Kind     string        `json:"kind"`
	Upstream string        `json:"upstream"`
	Policy   policyPayload `json:"effective_policy"`
}

func encodeKinds(kinds []kindmodule.KindMetadata) []kindPayload {
	if len(kinds) == 0 {
		return nil
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Key < kinds[j].Key
	})
	result := make([]kindPayload, 0, len(kinds))
	for _, meta := range kinds {
		result = append(result, encodeKind(meta))
	}
	return result
}

func encodeKind(meta kindmodule.KindMetadata) kindPayload {
	return kindPayload{
		Key:           meta.Key,
		Description:   meta.Description,
		CoverDir:      meta.CoverDir,
		MaxFetchBytes: meta.MaxFetchBytes,
		Policy:        encodePolicy(meta.Policy),
	}
}

func encodeBindings(routes []server.KindRoute) []bindingPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Module.Key < routes[j].Module.Key
	})
	result := make([]bindingPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeBinding(route))
	}
	return result
}

func encodeBinding(route server.KindRoute) bindingPayload {
	upstream := ""
	if route.UpstreamURL != nil {
		upstream = route.UpstreamURL.String()
	}
	return bindingPayload{
		Kind:     route.Module.Key,
		Upstream: upstream,
		Policy:   encodePolicy(route.Policy),
	}
}

func encodePolicy(p kindmodule.Policy) policyPayload {
	return policyPayload{
		SkipOverride:    p.SkipOverride,
		SkipDiskRead:    p.SkipDiskRead,
		SkipDiskWrite:   p.SkipDiskWrite,
		SkipMemoryWrite: p.SkipMemoryWrite,
	}
}
