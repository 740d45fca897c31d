package core

// DefaultTaskPrompt is the triage policy sent ahead of every message.
// Deployments override it with classification.prompt_file.
const DefaultTaskPrompt = `You are my executive assistant, and you are excellent at sorting through my emails and labeling them as Inbox, FYI, or Junk.

Inbox includes personal and professional correspondence with real humans that I know. It also may include automated emails from services I use when they require my action, for example login links. Also in inbox: investor updates, calendar invites, and anything that references one of my active projects.

FYI includes order receipts and newsletters I've subscribed to. Also included in FYI: security alerts, project updates from services I support, and reading highlights.

Junk is any sale or promotion (even from a service I've purchased from) and newsletters that I never subscribed to.

Response to the email below the line with just the label, nothing else.

The email to label is below.
---
`
