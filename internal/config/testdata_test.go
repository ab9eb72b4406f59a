package config

const validConfigYAML = `
server:
  port: 8081
routes:
  - path: /google
    target: https://www.google.com
  - path: /jsonplaceholder
    target: https://jsonplaceholder.typicode.com/posts
upstream:
  timeout: 5s
`

const invalidConfigYAML = `
server:
  port: -1
routes:
  - path: google
    target: ftp://example.com
`
