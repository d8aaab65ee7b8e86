package quality

import (
	"fmt"
	"strings"
)

// fallbackTemplates provide a generic, locally synthesized result per
// content type for use once the retry budget is spent. Deliberately bland:
// callers flag it as low-confidence and downstream surfaces can mark it for
// human review.
var fallbackTemplates = map[ContentType]string{
	ContentMarketingCopy: `# %s

%s is a software project. This page was generated from a fallback template
because automated copywriting did not produce acceptable output; replace it
with reviewed copy before publishing.

It offers the functionality described in the project documentation. See the
project README for an up-to-date feature overview and installation steps.`,

	ContentTechnicalDoc: `# %s Documentation

## Overview

This document is a generated placeholder for %s. Automated documentation
generation did not produce acceptable output for this run.

## Getting Started

Refer to the project README and inline documentation for usage until this
page is regenerated.`,

	ContentFeatureList: `# %s Features

- See the project README for the current feature set.
- This list is a generated placeholder for %s and needs regeneration.`,

	ContentFAQ: `# %s FAQ

What is %s?
A software project; see the README for details.

Where can I learn more?
The project documentation is the authoritative source until this page is
regenerated.`,
}

// FallbackContent synthesizes the canned result for contentType. The
// subject names the project or topic being written about.
func FallbackContent(contentType ContentType, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "This project"
	}
	tmpl, ok := fallbackTemplates[contentType]
	if !ok {
		return fmt.Sprintf("# %s\n\nGenerated placeholder content. Regeneration required.", subject)
	}
	return fmt.Sprintf(tmpl, subject, subject)
}
