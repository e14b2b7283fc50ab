package artifacts

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// import specifiers that name project files rather than packages
var (
	importRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w${},*\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	exportRe  = regexp.MustCompile(`(?m)^\s*export\s+(?:[\w${},*\s]+\s+)?from\s+['"]([^'"]+)['"]`)
	dynamicRe = regexp.MustCompile(`(?:import|require)\(\s*['"]([^'"]+)['"]\s*\)`)
)

var sourceExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

// candidate suffixes tried when resolving an extensionless specifier
var resolveSuffixes = []string{"", ".ts", ".tsx", ".js", ".jsx", ".css", ".json", "/index.ts", "/index.tsx", "/index.js"}

// ValidationResult is the outcome of a pre-flight artifact validation.
// Files carries the complete artifact set including any catalog injections,
// which is what later phases must sync and deploy.
type ValidationResult struct {
	OK              bool
	Violations      []apperrors.Violation
	Files           []FileArtifact
	Injected        []string
	BundleSizeBytes int64
	FileCount       int
}

// Validator performs dependency-completeness and bundle-size checks on an
// artifact set before anything touches the network.
type Validator struct {
	ceilingBytes int64
	marginBytes  int64
	catalog      map[string]string
	log          *logger.Logger
}

// NewValidator builds a validator enforcing the given hard ceiling minus the
// safety margin. The fallback component catalog is baked in.
func NewValidator(ceilingBytes, marginBytes int64, log *logger.Logger) *Validator {
	return &Validator{
		ceilingBytes: ceilingBytes,
		marginBytes:  marginBytes,
		catalog:      fallbackCatalog,
		log:          log,
	}
}

// Validate scans every source artifact for imports of project files, resolves
// them against the artifact set, injects fallback catalog modules for known
// missing components, and enforces the bundle size ceiling. The returned
// result always carries the (possibly extended) artifact set.
func (v *Validator) Validate(files []FileArtifact) *ValidationResult {
	files = Normalize(files)

	present := make(map[string]int, len(files))
	for i, f := range files {
		present[normalizePath(f.Path)] = i
	}

	aliases := v.loadAliases(files, present)

	var violations []apperrors.Violation
	var injected []string

	for _, f := range files {
		if !isSourceFile(f.Path) {
			continue
		}
		for _, spec := range extractSpecifiers(f.Content) {
			target, ok := v.resolveSpecifier(f.Path, spec, aliases)
			if !ok {
				continue // bare package import, not a project file
			}
			if _, found := resolveAgainst(present, target); found {
				continue
			}
			if catalogPath, content, found := v.lookupCatalog(target); found {
				if _, already := present[catalogPath]; !already {
					art := New(catalogPath, content)
					files = append(files, art)
					present[catalogPath] = len(files) - 1
					injected = append(injected, catalogPath)
				}
				continue
			}
			violations = append(violations, apperrors.Violation{
				Kind:    apperrors.ViolationMissingDependency,
				Path:    target,
				Source:  f.Path,
				Message: fmt.Sprintf("import %q in %s resolves to no artifact", spec, f.Path),
			})
		}
	}

	total := TotalSize(files)
	limit := v.ceilingBytes - v.marginBytes
	if total > limit {
		violations = append(violations, apperrors.Violation{
			Kind:    apperrors.ViolationBundleTooLarge,
			Message: fmt.Sprintf("bundle is %d bytes, limit is %d bytes", total, limit),
		})
	}

	if len(injected) > 0 && v.log != nil {
		v.log.Infof("injected %d fallback modules: %s", len(injected), strings.Join(injected, ", "))
	}

	return &ValidationResult{
		OK:              len(violations) == 0,
		Violations:      violations,
		Files:           files,
		Injected:        injected,
		BundleSizeBytes: total,
		FileCount:       len(files),
	}
}

// Err converts a failed result into the validation error the orchestrator
// surfaces. Returns nil when the result is OK.
func (r *ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return &apperrors.ValidationError{Violations: r.Violations}
}

// tsconfigPaths mirrors the compilerOptions.paths shape we care about.
type tsconfig struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// loadAliases returns prefix aliases, seeded with the conventional "@/" ->
// "src/" mapping and overridden by tsconfig.json when the artifact set ships
// one.
func (v *Validator) loadAliases(files []FileArtifact, present map[string]int) map[string]string {
	aliases := map[string]string{"@/": "src/"}

	idx, ok := present["tsconfig.json"]
	if !ok {
		return aliases
	}
	var cfg tsconfig
	if err := json.Unmarshal([]byte(files[idx].Content), &cfg); err != nil {
		if v.log != nil {
			v.log.Warnf("tsconfig.json is not valid JSON, using default aliases: %v", err)
		}
		return aliases
	}
	for pattern, targets := range cfg.CompilerOptions.Paths {
		if len(targets) == 0 {
			continue
		}
		from := strings.TrimSuffix(pattern, "*")
		to := strings.TrimSuffix(targets[0], "*")
		to = strings.TrimPrefix(to, "./")
		if from != "" {
			aliases[from] = to
		}
	}
	return aliases
}

// resolveSpecifier turns an import specifier into a repo-relative path.
// Returns false for bare package specifiers that name npm modules.
func (v *Validator) resolveSpecifier(fromPath, spec string, aliases map[string]string) (string, bool) {
	for prefix, target := range aliases {
		if strings.HasPrefix(spec, prefix) {
			return normalizePath(target + strings.TrimPrefix(spec, prefix)), true
		}
	}
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return normalizePath(path.Join(path.Dir(fromPath), spec)), true
	}
	return "", false
}

// resolveAgainst tries the candidate suffixes for an extensionless target.
func resolveAgainst(present map[string]int, target string) (string, bool) {
	for _, suffix := range resolveSuffixes {
		candidate := target + suffix
		if _, ok := present[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// lookupCatalog checks whether the missing target is a module the fallback
// catalog can provide.
func (v *Validator) lookupCatalog(target string) (string, string, bool) {
	for _, suffix := range resolveSuffixes {
		candidate := target + suffix
		if content, ok := v.catalog[candidate]; ok {
			return candidate, content, true
		}
	}
	return "", "", false
}

func extractSpecifiers(content string) []string {
	seen := make(map[string]struct{})
	var specs []string
	for _, re := range []*regexp.Regexp{importRe, exportRe, dynamicRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if _, dup := seen[m[1]]; dup {
				continue
			}
			seen[m[1]] = struct{}{}
			specs = append(specs, m[1])
		}
	}
	return specs
}

func isSourceFile(p string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.TrimPrefix(path.Clean(p), "./")
}
