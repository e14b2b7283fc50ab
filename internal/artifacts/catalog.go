package artifacts

// fallbackCatalog holds minimal implementations of the shared component
// library that generated apps import. When a generation references one of
// these modules without emitting the file itself, the validator injects the
// catalog copy instead of failing the deployment.
var fallbackCatalog = map[string]string{
	"src/lib/utils.ts": `import { clsx, type ClassValue } from "clsx";
import { twMerge } from "tailwind-merge";

export function cn(...inputs: ClassValue[]) {
  return twMerge(clsx(inputs));
}
`,
	"src/components/ui/button.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export interface ButtonProps extends React.ButtonHTMLAttributes<HTMLButtonElement> {
  variant?: "default" | "outline" | "ghost";
}

export const Button = React.forwardRef<HTMLButtonElement, ButtonProps>(
  ({ className, variant = "default", ...props }, ref) => (
    <button
      ref={ref}
      className={cn(
        "inline-flex items-center justify-center rounded-md px-4 py-2 text-sm font-medium",
        variant === "outline" && "border border-input bg-transparent",
        variant === "ghost" && "bg-transparent hover:bg-accent",
        className
      )}
      {...props}
    />
  )
);
Button.displayName = "Button";
`,
	"src/components/ui/card.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export const Card = ({ className, ...props }: React.HTMLAttributes<HTMLDivElement>) => (
  <div className={cn("rounded-lg border bg-card shadow-sm", className)} {...props} />
);

export const CardHeader = ({ className, ...props }: React.HTMLAttributes<HTMLDivElement>) => (
  <div className={cn("flex flex-col space-y-1.5 p-6", className)} {...props} />
);

export const CardTitle = ({ className, ...props }: React.HTMLAttributes<HTMLHeadingElement>) => (
  <h3 className={cn("text-lg font-semibold", className)} {...props} />
);

export const CardContent = ({ className, ...props }: React.HTMLAttributes<HTMLDivElement>) => (
  <div className={cn("p-6 pt-0", className)} {...props} />
);
`,
	"src/components/ui/input.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export const Input = React.forwardRef<HTMLInputElement, React.InputHTMLAttributes<HTMLInputElement>>(
  ({ className, ...props }, ref) => (
    <input
      ref={ref}
      className={cn("flex h-10 w-full rounded-md border border-input px-3 py-2 text-sm", className)}
      {...props}
    />
  )
);
Input.displayName = "Input";
`,
	"src/components/ui/label.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export const Label = React.forwardRef<HTMLLabelElement, React.LabelHTMLAttributes<HTMLLabelElement>>(
  ({ className, ...props }, ref) => (
    <label ref={ref} className={cn("text-sm font-medium leading-none", className)} {...props} />
  )
);
Label.displayName = "Label";
`,
	"src/components/ui/badge.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export const Badge = ({ className, ...props }: React.HTMLAttributes<HTMLDivElement>) => (
  <div
    className={cn("inline-flex items-center rounded-full border px-2.5 py-0.5 text-xs font-semibold", className)}
    {...props}
  />
);
`,
	"src/components/ui/textarea.tsx": `import * as React from "react";
import { cn } from "@/lib/utils";

export const Textarea = React.forwardRef<HTMLTextAreaElement, React.TextareaHTMLAttributes<HTMLTextAreaElement>>(
  ({ className, ...props }, ref) => (
    <textarea
      ref={ref}
      className={cn("flex min-h-[80px] w-full rounded-md border border-input px-3 py-2 text-sm", className)}
      {...props}
    />
  )
);
Textarea.displayName = "Textarea";
`,
}

// CatalogPaths returns the paths the fallback catalog can provide, useful
// for diagnostics.
func CatalogPaths() []string {
	paths := make([]string, 0, len(fallbackCatalog))
	for p := range fallbackCatalog {
		paths = append(paths, p)
	}
	return paths
}
