package bundler

import (
	"strings"

	"pybundle/internal/core/errors"
	"pybundle/internal/engine/resolver"
)

// namer hands out bundle-level names. Each name has one owner identity;
// two entities may share a name only when they are the same object.
type namer struct {
	owners  map[string]string // bundle name -> owner identity
	renames []Rename
}

func newNamer() *namer {
	return &namer{owners: make(map[string]string)}
}

// reserve claims a name that can never be renamed (builtins, names left
// unresolved).
func (n *namer) reserve(name, owner string) error {
	if current, ok := n.owners[name]; ok && current != owner {
		return errors.Newf(errors.CodeNameCollision,
			"%q is needed as %s but the entry definition binds it", name, owner).
			WithContext(errors.CtxSymbol, name)
	}
	n.owners[name] = owner
	return nil
}

// claim gives name to owner, or a qualified variant of it when the name is
// taken by something else.
func (n *namer) claim(name, owner, module string, renamable bool) (string, error) {
	if current, ok := n.owners[name]; !ok || current == owner {
		n.owners[name] = owner
		return name, nil
	}
	if !renamable {
		return "", errors.Newf(errors.CodeNameCollision,
			"%q from %s collides with %s and cannot be renamed", name, module, n.owners[name]).
			WithContext(errors.CtxModule, module).
			WithContext(errors.CtxSymbol, name)
	}

	renamed := qualifiedName(name, module)
	current, ok := n.owners[renamed]
	if ok && current == owner {
		return renamed, nil
	}
	if ok {
		return "", errors.Newf(errors.CodeNameCollision,
			"%q from %s collides with %s, and its renamed form %q is taken by %s",
			name, module, n.owners[name], renamed, current).
			WithContext(errors.CtxModule, module).
			WithContext(errors.CtxSymbol, name)
	}
	n.owners[renamed] = owner
	n.renames = append(n.renames, Rename{Module: module, From: name, To: renamed})
	return renamed, nil
}

// qualifiedName appends the module path to a name: helper in pkg_a.util
// becomes helper__pkg_a_util.
func qualifiedName(name, module string) string {
	return name + "__" + strings.NewReplacer(".", "_", "-", "_").Replace(module)
}

func definitionOwner(key resolver.NameKey) string {
	return "def:" + key.Module + ":" + key.Name
}

func importOwner(imp *resolver.PreservedImport) string {
	return "import:" + imp.Value() + "@" + imp.LocalName()
}
