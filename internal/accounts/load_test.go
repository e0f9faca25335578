package accounts_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/config"
)

var _ = Describe("Loading accounts", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		Expect(os.WriteFile(p, []byte(content), 0o600)).To(Succeed())
		return p
	}

	It("parses env pairs", func() {
		got := accounts.ParseAccounts([]string{"alice:pw1", " bob : pw2 : bob@example.com", "broken", "a:b:c:d", ":nouser"})
		Expect(got).To(Equal([]types.Account{
			{Username: "alice", Password: "pw1", Status: types.AccountActive},
			{Username: "bob", Password: "pw2", Email: "bob@example.com", Status: types.AccountActive},
		}))
	})

	It("reads a JSON file", func() {
		p := write("accounts.json", `[
			{"username": "alice", "email": "a@x", "password": "pw", "user_agent": "UA/1", "status": "active"},
			{"username": "bob", "password": "pw", "status": "inactive"},
			{"username": "carol", "password": "pw"},
			{"username": "", "password": "pw"}
		]`)
		got, err := accounts.LoadFile(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].UserAgent).To(Equal("UA/1"))
		Expect(got[1].Status).To(Equal(types.AccountInactive))
		Expect(got[2].Status).To(Equal(types.AccountActive))
	})

	It("reads a YAML file", func() {
		p := write("accounts.yaml", "- username: alice\n  password: pw\n  status: active\n- username: bob\n  password: pw\n  status: inactive\n")
		got, err := accounts.LoadFile(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(accounts.NewRotator(got).Len()).To(Equal(1))
	})

	It("reports unreadable and malformed files", func() {
		_, err := accounts.LoadFile(filepath.Join(dir, "missing.json"))
		Expect(err).To(HaveOccurred())

		_, err = accounts.LoadFile(write("bad.json", "{not json"))
		Expect(err).To(HaveOccurred())
	})

	It("merges file and env accounts, first occurrence wins", func() {
		p := write("accounts.json", `[{"username": "alice", "password": "file"}]`)
		got, err := accounts.Load(config.AccountsConfig{File: p, Pairs: []string{"alice:env", "bob:env"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Password).To(Equal("file"))
		Expect(got[1].Username).To(Equal("bob"))
	})
})
