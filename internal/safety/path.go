package safety

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// IsPathAllowed implements is_path_allowed(path) → bool, per spec:
//  1. expand home-directory shorthand
//  2. resolve symlinks on the full path, or its deepest existing prefix,
//     then re-append the unresolved tail
//  3. accept if the canonical path equals or lies strictly beneath one of
//     the canonicalized allowed_paths (directory containment, not string
//     prefix — "/foo-bar/x" must not match allowed path "/foo")
//  4. accept if the path starts with any temp_paths prefix
//  5. otherwise deny
func (k *Kernel) IsPathAllowed(path string) bool {
	path = expandHome(path)
	real, err := canonicalize(path)
	if err != nil {
		return false
	}

	for _, allowed := range k.policy.AllowedPaths {
		allowedReal, err := canonicalize(expandHome(allowed))
		if err != nil {
			allowedReal, _ = filepath.Abs(expandHome(allowed))
		}
		if isPathInside(real, allowedReal) {
			return true
		}
	}

	for _, prefix := range k.policy.TempPaths {
		if strings.HasPrefix(real, filepath.Clean(prefix)) {
			return true
		}
	}

	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if u, err := user.Current(); err == nil {
			if path == "~" {
				return u.HomeDir
			}
			return filepath.Join(u.HomeDir, path[2:])
		}
	}
	return path
}

// canonicalize resolves symlinks on the full path, falling back to the
// deepest existing ancestor (re-appending the unresolved tail) when the
// leaf — or an intermediate component — does not yet exist. Broken
// symlinks are resolved through their target rather than rejected outright,
// matching the workspace path-resolution behavior this is grounded on.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}

	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(abs)
		if readErr != nil {
			return "", readErr
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(abs), target)
		}
		return resolveThroughExistingAncestor(filepath.Clean(target))
	}

	return resolveThroughExistingAncestor(abs)
}

// resolveThroughExistingAncestor finds the deepest existing ancestor of
// path, canonicalizes it, and re-appends the remaining non-existent
// components — so a not-yet-created file still resolves to a comparable
// canonical location.
func resolveThroughExistingAncestor(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}

	current := path
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path), nil
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, c := range tail {
				result = filepath.Join(result, c)
			}
			return result, nil
		}
	}
}

// isPathInside reports whether child is equal to, or a descendant of,
// parent — directory containment, never plain string-prefix matching.
func isPathInside(child, parent string) bool {
	child = filepath.Clean(child)
	parent = filepath.Clean(parent)
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}
