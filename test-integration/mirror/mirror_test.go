package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/plugin-mirror/internal/api/common"
	"github.com/stacklok/plugin-mirror/internal/registry"
	"github.com/stacklok/plugin-mirror/internal/status"
	"github.com/stacklok/plugin-mirror/test-integration/mirror/helpers"
)

var _ = Describe("Plugin Mirror", Label("mirror"), func() {
	var (
		tempDir      string
		configFile   string
		directory    *helpers.FakeDirectory
		webhook      *helpers.WebhookRecorder
		serverHelper *helpers.ServerTestHelper
	)

	triggerUpdate := func(force bool) *status.RunSummary {
		resp, err := serverHelper.TriggerUpdate(force)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var summary status.RunSummary
		helpers.DecodeJSON(resp, &summary)
		return &summary
	}

	pluginInformation := func(slug string) (int, *registry.Plugin) {
		resp, err := serverHelper.PluginInformation(slug)
		Expect(err).NotTo(HaveOccurred())
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return resp.StatusCode, nil
		}
		var plugin registry.Plugin
		helpers.DecodeJSON(resp, &plugin)
		return resp.StatusCode, &plugin
	}

	BeforeEach(func() {
		tempDir = createTempDir("mirror-test-")
		directory = helpers.NewFakeDirectory(helpers.CreateTestPlugins()...)
		webhook = helpers.NewWebhookRecorder()

		configFile = helpers.WriteConfigYAML(tempDir, helpers.MirrorConfig{
			DirectoryURL: directory.URL(),
			DataDir:      tempDir,
			WebhookURL:   webhook.URL(),
		})

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		webhook.Close()
		directory.Close()
		cleanupTempDir(tempDir)
	})

	Context("Synchronization", func() {
		It("should mirror every plugin on the first run", func() {
			summary := triggerUpdate(false)

			Expect(summary.Status).To(Equal(status.RunStatusCompleted))
			Expect(summary.StopReason).To(Equal(status.StopEndOfFeed))
			Expect(summary.PagesWalked).To(Equal(2))
			Expect(summary.RecordsProcessed).To(Equal(3))
			Expect(summary.RecordsUpdated).To(Equal(3))
			Expect(summary.FinalCursor).To(Equal("2024-03-05 4:15pm GMT"))

			Eventually(webhook.Slugs).Should(ConsistOf("akismet", "jetpack", "woocommerce"))
		})

		It("should only walk updates newer than the last run", func() {
			triggerUpdate(false)
			directory.Bump("jetpack", "13.2", helpers.BaseTime.Add(time.Hour))

			summary := triggerUpdate(false)
			Expect(summary.Status).To(Equal(status.RunStatusCompleted))
			Expect(summary.StopReason).To(Equal(status.StopCursorReached))
			Expect(summary.RecordsProcessed).To(Equal(1))
			Expect(summary.RecordsUpdated).To(Equal(1))
			Expect(summary.StartCursor).To(Equal("2024-03-05 4:15pm GMT"))
			Expect(summary.FinalCursor).To(Equal("2024-03-05 5:15pm GMT"))

			Eventually(webhook.Slugs).Should(HaveLen(4))
			Expect(webhook.Slugs()[3]).To(Equal("jetpack"))

			code, plugin := pluginInformation("jetpack")
			Expect(code).To(Equal(http.StatusOK))
			Expect(plugin.Version()).To(Equal("13.2"))
		})

		It("should walk the whole feed when forced without re-announcing unchanged plugins", func() {
			triggerUpdate(false)
			Eventually(webhook.Slugs).Should(HaveLen(3))

			summary := triggerUpdate(true)
			Expect(summary.Force).To(BeTrue())
			Expect(summary.RecordsProcessed).To(Equal(3))
			Expect(summary.RecordsUpdated).To(BeZero())

			Consistently(webhook.Slugs, 300*time.Millisecond).Should(HaveLen(3))
		})

		It("should report the last run on update-status", func() {
			resp, err := serverHelper.UpdateStatus()
			Expect(err).NotTo(HaveOccurred())
			var idle status.RunSummary
			helpers.DecodeJSON(resp, &idle)
			Expect(idle.Status).To(Equal(status.RunStatusIdle))

			run := triggerUpdate(false)

			resp, err = serverHelper.UpdateStatus()
			Expect(err).NotTo(HaveOccurred())
			var last status.RunSummary
			helpers.DecodeJSON(resp, &last)
			Expect(last.RunID).To(Equal(run.RunID))
			Expect(last.Status).To(Equal(status.RunStatusCompleted))
		})
	})

	Context("Reads", func() {
		It("should serve synchronized plugins without contacting the directory", func() {
			triggerUpdate(false)

			code, plugin := pluginInformation("akismet")
			Expect(code).To(Equal(http.StatusOK))
			Expect(plugin.Slug).To(Equal("akismet"))
			Expect(plugin.Version()).To(Equal("5.3"))
			Expect(directory.InfoRequests()).To(BeZero())
		})

		It("should read through to the directory on a miss and cache the result", func() {
			directory.Put(registry.NewTestPlugin("hello-dolly", registry.WithVersion("1.7.2")))

			code, plugin := pluginInformation("hello-dolly")
			Expect(code).To(Equal(http.StatusOK))
			Expect(plugin.Version()).To(Equal("1.7.2"))
			Expect(directory.InfoRequests()).To(BeEquivalentTo(1))

			code, _ = pluginInformation("hello-dolly")
			Expect(code).To(Equal(http.StatusOK))
			Expect(directory.InfoRequests()).To(BeEquivalentTo(1))
		})

		It("should answer 404 for plugins the directory does not know", func() {
			resp, err := serverHelper.PluginInformation("no-such-plugin")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body common.ErrorResponse
			helpers.DecodeJSON(resp, &body)
			Expect(body.Error.Message).To(Equal("Not Found"))
		})

		It("should list mirrored plugins newest first", func() {
			triggerUpdate(false)

			resp, err := serverHelper.QueryPlugins(1, 2, "updated")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list registry.PluginList
			helpers.DecodeJSON(resp, &list)
			Expect(list.Info.Results).To(Equal(3))
			Expect(list.Info.Pages).To(Equal(2))
			Expect(list.Plugins).To(HaveLen(2))
			Expect(list.Plugins[0].Slug).To(Equal("akismet"))
			Expect(list.Plugins[1].Slug).To(Equal("jetpack"))
		})

		It("should reject unsupported actions", func() {
			resp, err := serverHelper.Info("action=hot_tags")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body common.ErrorResponse
			helpers.DecodeJSON(resp, &body)
			Expect(body.Error.Message).To(Equal("Invalid or unsupported action"))
		})
	})

	Context("Restarts", func() {
		It("should keep mirrored plugins and the cursor across restarts", func() {
			triggerUpdate(false)
			Expect(serverHelper.StopServer()).To(Succeed())

			var err error
			serverHelper, err = helpers.NewServerTestHelper(ctx, configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)

			code, plugin := pluginInformation("woocommerce")
			Expect(code).To(Equal(http.StatusOK))
			Expect(plugin.Version()).To(Equal("8.6.1"))
			Expect(directory.InfoRequests()).To(BeZero())

			summary := triggerUpdate(false)
			Expect(summary.StopReason).To(Equal(status.StopCursorReached))
			Expect(summary.RecordsProcessed).To(BeZero())
		})
	})
})
