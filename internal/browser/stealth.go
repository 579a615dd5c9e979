package browser

// stealthScript masks the automation signals client-side bot detection reads.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined
});

Object.defineProperty(navigator, 'plugins', {
	get: () => [1, 2, 3, 4, 5]
});

Object.defineProperty(navigator, 'languages', {
	get: () => ['en-US', 'en']
});

window.chrome = window.chrome || { runtime: {} };
`

func chromiumArgs(stealth bool) []string {
	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-web-security",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
	}
	if stealth {
		args = append(args,
			"--disable-automation",
			"--disable-infobars",
		)
	}
	return args
}
