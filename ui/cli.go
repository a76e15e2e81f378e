package ui

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/engine"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Color definitions using fatih/color package for better cross-platform support
var (
	colorRed     = color.New(color.FgRed).SprintFunc()
	colorGreen   = color.New(color.FgGreen).SprintFunc()
	colorYellow  = color.New(color.FgYellow).SprintFunc()
	colorBlue    = color.New(color.FgBlue).SprintFunc()
	colorMagenta = color.New(color.FgMagenta).SprintFunc()
	colorCyan    = color.New(color.FgCyan).SprintFunc()
	colorWhite   = color.New(color.FgWhite).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

// Config holds the CLI display settings
type Config struct {
	RefreshInterval   time.Duration
	AlertBatchSize    int
	DefaultAlertLimit int
	HistorySize       int
}

// DefaultConfig returns the settings used by NewCLI
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:   2 * time.Second,
		AlertBatchSize:    5,
		DefaultAlertLimit: 15,
		HistorySize:       50,
	}
}

// CLI is the interactive operator console over one engine
type CLI struct {
	engine      *engine.Engine
	departments []string
	templates   []model.PatternForm

	in  io.Reader
	out io.Writer

	config     *Config
	startTime  time.Time
	lastCmd    string
	cmdHistory []string
	lastAlert  string

	mutex    sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewCLI creates a new CLI reading commands from in and writing to out
func NewCLI(eng *engine.Engine, departments []string, templates []model.PatternForm, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		engine:      eng,
		departments: departments,
		templates:   templates,
		in:          in,
		out:         out,
		config:      DefaultConfig(),
		startTime:   time.Now(),
		cmdHistory:  make([]string, 0, 50),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Done is closed when the operator exits or input ends
func (c *CLI) Done() <-chan struct{} {
	return c.done
}

// Start shows the menu and begins reading commands and streaming new alerts
func (c *CLI) Start() {
	if alerts := c.engine.Alerts(); len(alerts) > 0 {
		c.lastAlert = alerts[0].ID
	}

	c.mutex.Lock()
	c.showMenu()
	c.mutex.Unlock()

	c.wg.Add(1)
	go c.displayAlerts()

	go c.processCommands()
}

// Stop halts the background alert display
func (c *CLI) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
}

func (c *CLI) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// displayAlerts prints alerts raised since the last poll
func (c *CLI) displayAlerts() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if fresh := c.pollAlerts(); len(fresh) > 0 {
				c.mutex.Lock()
				c.displayAlertBatch(fresh)
				c.mutex.Unlock()
			}
		case <-c.stopChan:
			return
		}
	}
}

// pollAlerts returns alerts newer than the last one seen, newest first
func (c *CLI) pollAlerts() []model.Alert {
	alerts := c.engine.Alerts()
	var fresh []model.Alert
	for _, alert := range alerts {
		if alert.ID == c.lastAlert {
			break
		}
		fresh = append(fresh, alert)
	}
	if len(alerts) > 0 {
		c.lastAlert = alerts[0].ID
	}
	return fresh
}

// displayAlertBatch shows at most AlertBatchSize new alerts
func (c *CLI) displayAlertBatch(alerts []model.Alert) {
	if len(alerts) > c.config.AlertBatchSize {
		alerts = alerts[:c.config.AlertBatchSize]
	}

	fmt.Fprintf(c.out, "\n%s\n", colorBold(colorYellow("╔═ New Alerts ═════════════════════════════════════")))
	for _, alert := range alerts {
		sevColor := getSeverityColorFunc(alert.Severity)
		fmt.Fprintf(c.out, "║ %s [%s] %s %s\n",
			sevColor(fmt.Sprintf("%-8s", alert.Severity)),
			alert.Timestamp.Format("15:04:05"),
			c.entityName(alert.EntityID),
			alert.Message)
	}
	fmt.Fprintf(c.out, "%s\n> ", colorYellow("╚═════════════════════════════════════════════════════"))
}

// processCommands reads and executes one command per line
func (c *CLI) processCommands() {
	defer c.finish()

	scanner := bufio.NewScanner(c.in)
	c.prompt()

	for scanner.Scan() {
		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			c.prompt()
			continue
		}

		c.mutex.Lock()
		c.recordHistory(command)
		exit := c.executeCommand(command)
		c.mutex.Unlock()
		if exit {
			return
		}
		c.prompt()
	}
}

func (c *CLI) prompt() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprint(c.out, "\n> ")
}

// recordHistory appends a command, avoiding consecutive duplicates
func (c *CLI) recordHistory(command string) {
	if len(c.cmdHistory) > 0 && c.cmdHistory[len(c.cmdHistory)-1] == command {
		return
	}
	if len(c.cmdHistory) >= c.config.HistorySize {
		c.cmdHistory = c.cmdHistory[1:]
	}
	c.cmdHistory = append(c.cmdHistory, command)
}

// executeCommand runs one command. It reports true when the CLI should exit.
func (c *CLI) executeCommand(command string) bool {
	// Split by quotes to preserve quoted sections
	parts := c.parseCommandWithQuotes(command)
	if len(parts) == 0 {
		return false
	}

	// Case-insensitive command, case preserved for arguments
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	if cmd != "refresh" {
		c.lastCmd = command
	}

	switch cmd {
	case "help", "h", "?":
		c.showHelp()
	case "menu", "m":
		c.showMenu()
	case "status", "summary", "1", "s":
		c.showStatus()
	case "entities", "2", "e":
		c.showEntities(args)
	case "entity":
		c.requireArg(args, "entity <entity_id>", c.showEntityDetail)
	case "alerts", "3", "a":
		c.showAlerts(args)
	case "ack":
		c.requireArg(args, "ack <alert_id>", c.acknowledgeAlert)
	case "rules", "4", "r":
		c.handleRuleCommand(args)
	case "score":
		c.handleScoreCommand(args)
	case "pattern":
		c.handlePatternCommand(args)
	case "add":
		c.handleAddCommand(args)
	case "trend":
		c.requireArg(args, "trend <entity_id>", c.showTrend)
	case "templates", "t":
		c.showTemplates()
	case "departments":
		c.showDepartments()
	case "history":
		c.showCommandHistory()
	case "refresh":
		c.refreshCurrentView()
	case "clear", "cls":
		fmt.Fprint(c.out, "\033[H\033[2J")
		c.showMenu()
	case "exit", "quit", "q":
		fmt.Fprintln(c.out, "Exiting Cryon Risk...")
		return true
	default:
		fmt.Fprintf(c.out, "%s: Unknown command: %s\n", colorRed("Error"), parts[0])
		fmt.Fprintln(c.out, "Type 'help' to see available commands")
	}
	return false
}

// parseCommandWithQuotes splits command respecting quoted strings
func (c *CLI) parseCommandWithQuotes(command string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, r := range command {
		switch {
		case r == '"' || r == '\'':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

func (c *CLI) requireArg(args []string, usage string, fn func(string)) {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Usage: %s\n", usage)
		return
	}
	fn(args[0])
}

func (c *CLI) printError(err error) {
	fmt.Fprintf(c.out, "%s: %v\n", colorRed("Error"), err)
}

// refreshCurrentView re-runs the last command
func (c *CLI) refreshCurrentView() {
	if c.lastCmd == "" {
		c.showMenu()
		return
	}
	c.executeCommand(c.lastCmd)
}

// showBanner displays the application banner
func (c *CLI) showBanner() {
	fmt.Fprintln(c.out, colorCyan(`
   ______                         ____  _      __
  / ____/______  ______  ____    / __ \(_)____/ /__
 / /   / ___/ / / / __ \/ __ \  / /_/ / / ___/ //_/
/ /___/ /  / /_/ / /_/ / / / / / _, _/ (__  ) ,<
\____/_/   \__, /\____/_/ /_/ /_/ |_/_/____/_/|_|
          /____/
`))
}

// showMenu displays the main menu
func (c *CLI) showMenu() {
	c.showBanner()

	fmt.Fprintf(c.out, "\n%s\n", colorBold("Main Menu:"))

	table := tablewriter.NewWriter(c.out)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("│")
	table.SetHeaderLine(false)
	table.SetNoWhiteSpace(true)

	table.Append([]string{colorCyan("1") + " or " + colorCyan("s"), "Status", "Risk summary and tier distribution"})
	table.Append([]string{colorCyan("2") + " or " + colorCyan("e"), "Entities", "Monitored users, devices and applications"})
	table.Append([]string{colorCyan("3") + " or " + colorCyan("a"), "Alerts", "View and acknowledge alerts"})
	table.Append([]string{colorCyan("4") + " or " + colorCyan("r"), "Rules", "Configure risk rules"})
	table.Append([]string{colorCyan("add"), "Add Entity", "Register a new entity"})
	table.Append([]string{colorCyan("pattern"), "Add Pattern", "Attach a detected pattern to an entity"})
	table.Append([]string{colorCyan("score"), "Override Score", "Manually set an entity's risk score"})
	table.Append([]string{colorCyan("help") + " or " + colorCyan("?"), "Help", "Display help information"})
	table.Append([]string{colorCyan("quit") + " or " + colorCyan("q"), "Quit", "Exit application"})
	table.Render()

	c.showQuickStatus()
}

// showQuickStatus shows a condensed status overview for the main menu
func (c *CLI) showQuickStatus() {
	summary := c.engine.Summary()

	fmt.Fprintf(c.out, "\n%s\n", colorBold("Quick Status:"))
	fmt.Fprintf(c.out, "═════════════════════════════════════\n")
	fmt.Fprintf(c.out, "Uptime:     %s\n", c.getUptimeString())
	fmt.Fprintf(c.out, "Entities:   %d (%d high risk)\n", summary.TotalEntities, summary.HighRiskEntities)
	fmt.Fprintf(c.out, "Alerts:     %d active\n", summary.ActiveAlerts)
	fmt.Fprintf(c.out, "Rules:      %d active\n", c.countActiveRules())
}

// showHelp displays available commands
func (c *CLI) showHelp() {
	fmt.Fprintln(c.out, "\nAvailable Commands:")
	fmt.Fprintln(c.out, "═════════════════════")
	fmt.Fprintln(c.out, "  status                             - Risk summary")
	fmt.Fprintln(c.out, "  entities [tier]                    - List entities, optionally by tier")
	fmt.Fprintln(c.out, "  entity <id>                        - Show entity detail")
	fmt.Fprintln(c.out, "  trend <id>                         - Show recorded score samples")
	fmt.Fprintln(c.out, "  add <type> \"<name>\" \"<dept>\" [score] - Register an entity")
	fmt.Fprintln(c.out, "  pattern <id> <template#>           - Attach a pattern from a template")
	fmt.Fprintln(c.out, "  pattern <id> \"<name>\" \"<desc>\" <severity> <category> <threshold>")
	fmt.Fprintln(c.out, "  score <id> <score> <reason...>     - Override a risk score")
	fmt.Fprintln(c.out, "  alerts [all|<severity>]            - List alerts")
	fmt.Fprintln(c.out, "  ack <id>                           - Acknowledge an alert")
	fmt.Fprintln(c.out, "  rules                              - List rules")
	fmt.Fprintln(c.out, "  templates | departments            - Show form presets")
	fmt.Fprintln(c.out, "  history | refresh | clear | menu | quit")
	c.showRulesHelp()
}

func (c *CLI) showRulesHelp() {
	fmt.Fprintln(c.out, "\nRule Commands:")
	fmt.Fprintln(c.out, "  rules show <id>                    - Show rule detail")
	fmt.Fprintln(c.out, "  rules enable|disable|toggle <id>   - Change rule state")
	fmt.Fprintln(c.out, "  rules delete <id>                  - Remove a rule")
	fmt.Fprintln(c.out, "  rules add \"<name>\" \"<desc>\" <category> <weight> <threshold>")
	fmt.Fprintln(c.out, "  rules edit <id> <weight> <threshold>")
}

// showStatus displays the dashboard summary
func (c *CLI) showStatus() {
	summary := c.engine.Summary()

	fmt.Fprintln(c.out, "\nRisk Status:")
	fmt.Fprintln(c.out, "════════════")
	engineState := colorGreen("running")
	if !c.engine.Running() {
		engineState = colorYellow("stopped")
	}
	fmt.Fprintf(c.out, "Engine:             %s\n", engineState)
	fmt.Fprintf(c.out, "Uptime:             %s\n", c.getUptimeString())
	fmt.Fprintf(c.out, "Total Entities:     %d\n", summary.TotalEntities)
	fmt.Fprintf(c.out, "High Risk Entities: %s\n", colorRed(summary.HighRiskEntities))
	fmt.Fprintf(c.out, "Active Alerts:      %s\n", colorYellow(summary.ActiveAlerts))
	fmt.Fprintf(c.out, "Average Risk Score: %d\n", summary.AverageRiskScore)

	counts := make(map[model.Severity]int, len(model.Severities))
	for _, entity := range c.engine.Entities() {
		counts[entity.Status]++
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Tier", "Entities"})
	for i := len(model.Severities) - 1; i >= 0; i-- {
		tier := model.Severities[i]
		table.Append([]string{getSeverityColorFunc(tier)(string(tier)), strconv.Itoa(counts[tier])})
	}
	table.Render()
}

// showEntities lists entities, optionally filtered by tier
func (c *CLI) showEntities(args []string) {
	entities := c.engine.Entities()
	if len(args) > 0 {
		tier, ok := model.ParseSeverity(args[0])
		if !ok {
			fmt.Fprintf(c.out, "Unknown tier '%s'\n", args[0])
			return
		}
		filtered := entities[:0]
		for _, entity := range entities {
			if entity.Status == tier {
				filtered = append(filtered, entity)
			}
		}
		entities = filtered
	}

	if len(entities) == 0 {
		fmt.Fprintln(c.out, "No entities found")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Name", "Type", "Department", "Score", "Status", "Patterns", "Last Activity"})
	for _, entity := range entities {
		table.Append([]string{
			entity.ID,
			entity.Name,
			string(entity.Type),
			entity.Department,
			strconv.Itoa(entity.RiskScore),
			getSeverityColorFunc(entity.Status)(string(entity.Status)),
			strconv.Itoa(len(entity.Patterns)),
			entity.LastActivity.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
}

// showEntityDetail displays one entity with its patterns and recommendations
func (c *CLI) showEntityDetail(id string) {
	entity, ok := c.engine.Entity(id)
	if !ok {
		fmt.Fprintf(c.out, "Entity with ID '%s' not found\n", id)
		return
	}

	fmt.Fprintf(c.out, "\nEntity Details [%s]:\n", entity.ID)
	fmt.Fprintln(c.out, "═════════════════════")
	fmt.Fprintf(c.out, "Name:          %s\n", entity.Name)
	fmt.Fprintf(c.out, "Type:          %s\n", entity.Type)
	fmt.Fprintf(c.out, "Department:    %s\n", entity.Department)
	fmt.Fprintf(c.out, "Risk Score:    %d\n", entity.RiskScore)
	fmt.Fprintf(c.out, "Status:        %s\n", getSeverityColorFunc(entity.Status)(string(entity.Status)))
	fmt.Fprintf(c.out, "Last Activity: %s\n", entity.LastActivity.Format("2006-01-02 15:04:05"))

	if len(entity.Patterns) > 0 {
		fmt.Fprintln(c.out, "\nPatterns:")
		table := tablewriter.NewWriter(c.out)
		table.SetHeader([]string{"ID", "Name", "Severity", "Frequency", "Impact", "Detected"})
		for _, p := range entity.Patterns {
			table.Append([]string{
				p.ID,
				p.Name,
				strconv.Itoa(p.Severity),
				strconv.Itoa(p.Frequency),
				strconv.Itoa(p.Impact),
				p.LastDetected.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
	}

	if len(entity.Recommendations) > 0 {
		fmt.Fprintln(c.out, "\nRecommendations:")
		table := tablewriter.NewWriter(c.out)
		table.SetHeader([]string{"Priority", "Type", "Title", "Estimated Time"})
		for _, r := range entity.Recommendations {
			table.Append([]string{
				getSeverityColorFunc(r.Priority)(string(r.Priority)),
				string(r.Type),
				r.Title,
				r.EstimatedTime,
			})
		}
		table.Render()
	}
}

// showTrend displays the recorded score samples of an entity
func (c *CLI) showTrend(id string) {
	trends := c.engine.Trends(id)
	if len(trends) == 0 {
		fmt.Fprintf(c.out, "No score history for '%s'\n", id)
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Time", "Score", ""})
	for _, trend := range trends {
		table.Append([]string{
			trend.Timestamp.Format("15:04:05"),
			strconv.Itoa(trend.Score),
			strings.Repeat("█", trend.Score/2),
		})
	}
	table.Render()
}

// showAlerts lists alerts, by default only unacknowledged ones
func (c *CLI) showAlerts(args []string) {
	alerts := c.engine.Alerts()
	showAll := false
	var severity model.Severity
	if len(args) > 0 {
		if strings.ToLower(args[0]) == "all" {
			showAll = true
		} else if s, ok := model.ParseSeverity(args[0]); ok {
			severity = s
			showAll = true
		} else {
			fmt.Fprintln(c.out, "Usage: alerts [all|low|medium|high|critical]")
			return
		}
	}

	var filtered []model.Alert
	for _, alert := range alerts {
		if !showAll && alert.Acknowledged {
			continue
		}
		if severity != "" && alert.Severity != severity {
			continue
		}
		filtered = append(filtered, alert)
	}

	if len(filtered) == 0 {
		fmt.Fprintln(c.out, "No alerts found")
		return
	}
	if len(filtered) > c.config.DefaultAlertLimit {
		filtered = filtered[:c.config.DefaultAlertLimit]
	}
	c.displayAlertTable(filtered)
}

// displayAlertTable shows alerts in a formatted table
func (c *CLI) displayAlertTable(alerts []model.Alert) {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Time", "Severity", "Type", "Entity", "Message", "Ack"})

	for _, alert := range alerts {
		ack := ""
		if alert.Acknowledged {
			ack = "✓"
		}
		table.Append([]string{
			alert.ID,
			alert.Timestamp.Format("15:04:05"),
			getSeverityColorFunc(alert.Severity)(string(alert.Severity)),
			string(alert.Type),
			c.entityName(alert.EntityID),
			alert.Message,
			ack,
		})
	}
	table.Render()
}

// acknowledgeAlert marks an alert as acknowledged
func (c *CLI) acknowledgeAlert(id string) {
	if c.engine.AcknowledgeAlert(id) {
		fmt.Fprintf(c.out, "Alert %s acknowledged\n", id)
		return
	}
	fmt.Fprintf(c.out, "Alert '%s' not found or already acknowledged\n", id)
}

// handleRuleCommand processes rule-related commands
func (c *CLI) handleRuleCommand(args []string) {
	if len(args) == 0 {
		c.showRules()
		return
	}

	sub := strings.ToLower(args[0])
	if sub == "add" {
		c.addRule(args[1:])
		return
	}
	if len(args) < 2 {
		c.showRulesHelp()
		return
	}

	id := args[1]
	switch sub {
	case "show":
		c.showRuleDetail(id)
	case "enable":
		c.setRuleEnabled(id, true)
	case "disable":
		c.setRuleEnabled(id, false)
	case "toggle":
		if c.engine.ToggleRule(id) {
			fmt.Fprintf(c.out, "Rule '%s' toggled\n", id)
		} else {
			fmt.Fprintf(c.out, "Rule with ID '%s' not found\n", id)
		}
	case "delete":
		if c.engine.DeleteRule(id) {
			fmt.Fprintf(c.out, "Rule '%s' deleted\n", id)
		} else {
			fmt.Fprintf(c.out, "Rule with ID '%s' not found\n", id)
		}
	case "edit":
		c.editRule(id, args[2:])
	default:
		c.showRulesHelp()
	}
}

func (c *CLI) findRule(id string) (model.RiskRule, bool) {
	for _, rule := range c.engine.Rules() {
		if rule.ID == id {
			return rule, true
		}
	}
	return model.RiskRule{}, false
}

// setRuleEnabled enables or disables a risk rule
func (c *CLI) setRuleEnabled(id string, enabled bool) {
	rule, ok := c.findRule(id)
	if !ok {
		fmt.Fprintf(c.out, "Rule with ID '%s' not found\n", id)
		return
	}

	rule.Enabled = enabled
	if _, err := c.engine.UpdateRule(rule); err != nil {
		c.printError(err)
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(c.out, "Rule '%s' %s\n", id, state)
}

// addRule creates a rule from positional arguments
func (c *CLI) addRule(args []string) {
	if len(args) < 5 {
		fmt.Fprintln(c.out, "Usage: rules add \"<name>\" \"<desc>\" <category> <weight> <threshold>")
		return
	}

	weight, err1 := strconv.Atoi(args[3])
	threshold, err2 := strconv.Atoi(args[4])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(c.out, "Weight and threshold must be whole numbers")
		return
	}

	id, err := c.engine.AddRule(model.RiskRule{
		Name:        args[0],
		Description: args[1],
		Category:    model.Category(strings.ToLower(args[2])),
		Weight:      weight,
		Threshold:   threshold,
		Enabled:     true,
	})
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Rule '%s' added\n", id)
}

// editRule changes the weight and threshold of a rule
func (c *CLI) editRule(id string, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: rules edit <id> <weight> <threshold>")
		return
	}
	rule, ok := c.findRule(id)
	if !ok {
		fmt.Fprintf(c.out, "Rule with ID '%s' not found\n", id)
		return
	}

	weight, err1 := strconv.Atoi(args[0])
	threshold, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(c.out, "Weight and threshold must be whole numbers")
		return
	}
	rule.Weight = weight
	rule.Threshold = threshold

	if _, err := c.engine.UpdateRule(rule); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Rule '%s' updated\n", id)
}

// showRules displays all risk rules
func (c *CLI) showRules() {
	rules := c.engine.Rules()
	if len(rules) == 0 {
		fmt.Fprintln(c.out, "No rules defined")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Name", "Category", "Weight", "Threshold", "Status"})
	for _, rule := range rules {
		status := colorRed("Disabled")
		if rule.Enabled {
			status = colorGreen("Enabled")
		}
		table.Append([]string{
			rule.ID,
			rule.Name,
			string(rule.Category),
			strconv.Itoa(rule.Weight),
			strconv.Itoa(rule.Threshold),
			status,
		})
	}
	table.Render()
}

// showRuleDetail displays detailed information about a specific rule
func (c *CLI) showRuleDetail(id string) {
	rule, ok := c.findRule(id)
	if !ok {
		fmt.Fprintf(c.out, "Rule with ID '%s' not found\n", id)
		return
	}

	status := "DISABLED"
	if rule.Enabled {
		status = "ENABLED"
	}

	fmt.Fprintln(c.out, "\nRule Details:")
	fmt.Fprintln(c.out, "═════════════")
	fmt.Fprintf(c.out, "ID:          %s\n", rule.ID)
	fmt.Fprintf(c.out, "Name:        %s\n", rule.Name)
	fmt.Fprintf(c.out, "Description: %s\n", rule.Description)
	fmt.Fprintf(c.out, "Category:    %s\n", rule.Category)
	fmt.Fprintf(c.out, "Weight:      %d\n", rule.Weight)
	fmt.Fprintf(c.out, "Threshold:   %d\n", rule.Threshold)
	fmt.Fprintf(c.out, "Status:      %s\n", status)
}

// handleScoreCommand overrides a risk score: score <id> <score> <reason...>
func (c *CLI) handleScoreCommand(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: score <entity_id> <score> <reason...>")
		return
	}

	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid score '%s'\n", args[1])
		return
	}

	applied, err := c.engine.UpdateRiskScore(args[0], score, strings.Join(args[2:], " "))
	if err != nil {
		c.printError(err)
		return
	}
	if !applied {
		fmt.Fprintf(c.out, "Entity with ID '%s' not found\n", args[0])
		return
	}

	entity, _ := c.engine.Entity(args[0])
	fmt.Fprintf(c.out, "Risk score for %s set to %d (%s)\n",
		entity.Name, entity.RiskScore, getSeverityColorFunc(entity.Status)(string(entity.Status)))
}

// handlePatternCommand attaches a pattern from a template or explicit fields
func (c *CLI) handlePatternCommand(args []string) {
	var form model.PatternForm
	switch len(args) {
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > len(c.templates) {
			fmt.Fprintf(c.out, "Template must be a number between 1 and %d (see 'templates')\n", len(c.templates))
			return
		}
		form = c.templates[n-1]
	case 6:
		severity, err1 := strconv.Atoi(args[3])
		threshold, err2 := strconv.Atoi(args[5])
		if err1 != nil || err2 != nil {
			fmt.Fprintln(c.out, "Severity and threshold must be whole numbers")
			return
		}
		form = model.PatternForm{
			Name:        args[1],
			Description: args[2],
			Severity:    severity,
			Category:    model.Category(strings.ToLower(args[4])),
			Threshold:   threshold,
		}
	default:
		fmt.Fprintln(c.out, "Usage: pattern <entity_id> <template#>")
		fmt.Fprintln(c.out, "       pattern <entity_id> \"<name>\" \"<desc>\" <severity> <category> <threshold>")
		return
	}

	id, err := c.engine.AddPattern(args[0], form)
	if err != nil {
		c.printError(err)
		return
	}
	if id == "" {
		fmt.Fprintf(c.out, "Entity with ID '%s' not found\n", args[0])
		return
	}

	entity, _ := c.engine.Entity(args[0])
	fmt.Fprintf(c.out, "Pattern '%s' added to %s, risk score now %d\n", form.Name, entity.Name, entity.RiskScore)
}

// handleAddCommand registers an entity: add <type> "<name>" "<dept>" [score]
func (c *CLI) handleAddCommand(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: add <user|device|application> \"<name>\" \"<department>\" [score]")
		return
	}

	form := model.EntityForm{
		Type:       model.EntityType(strings.ToLower(args[0])),
		Name:       args[1],
		Department: args[2],
	}
	if len(args) > 3 {
		score, err := strconv.Atoi(args[3])
		if err != nil {
			fmt.Fprintf(c.out, "Invalid score '%s'\n", args[3])
			return
		}
		form.InitialRiskScore = &score
	}

	id, err := c.engine.AddEntity(form)
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Entity '%s' added as %s\n", form.Name, id)
}

// showTemplates lists the pattern presets
func (c *CLI) showTemplates() {
	if len(c.templates) == 0 {
		fmt.Fprintln(c.out, "No pattern templates configured")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"#", "Name", "Description", "Severity", "Category", "Threshold"})
	for i, tmpl := range c.templates {
		table.Append([]string{
			strconv.Itoa(i + 1),
			tmpl.Name,
			tmpl.Description,
			strconv.Itoa(tmpl.Severity),
			string(tmpl.Category),
			strconv.Itoa(tmpl.Threshold),
		})
	}
	table.Render()
}

// showDepartments lists the departments offered when adding an entity
func (c *CLI) showDepartments() {
	fmt.Fprintln(c.out, "\nDepartments:")
	for _, dept := range c.departments {
		fmt.Fprintf(c.out, "  - %s\n", dept)
	}
}

// showCommandHistory displays command history
func (c *CLI) showCommandHistory() {
	if len(c.cmdHistory) == 0 {
		fmt.Fprintln(c.out, "No command history yet")
		return
	}

	fmt.Fprintln(c.out, "\nCommand History:")
	fmt.Fprintln(c.out, "═════════════════")
	for i, cmd := range c.cmdHistory {
		fmt.Fprintf(c.out, " %2d: %s\n", i+1, cmd)
	}
}

// getUptimeString formats the console uptime
func (c *CLI) getUptimeString() string {
	uptime := time.Since(c.startTime)
	days := int(uptime.Hours() / 24)
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// countActiveRules returns the number of enabled rules
func (c *CLI) countActiveRules() int {
	count := 0
	for _, rule := range c.engine.Rules() {
		if rule.Enabled {
			count++
		}
	}
	return count
}

func (c *CLI) entityName(id string) string {
	if entity, ok := c.engine.Entity(id); ok {
		return entity.Name
	}
	return id
}

// getSeverityColorFunc returns the appropriate color function for a severity level
func getSeverityColorFunc(severity model.Severity) func(a ...interface{}) string {
	switch severity {
	case model.SeverityCritical:
		return colorRed
	case model.SeverityHigh:
		return colorMagenta
	case model.SeverityMedium:
		return colorYellow
	case model.SeverityLow:
		return colorBlue
	default:
		return colorWhite
	}
}
